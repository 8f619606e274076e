// Package live reconciles newly arrived or updated server messages with the
// chat that is already shown.
package live

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/coachchat/pkg/classifier"
	"github.com/go-go-golems/coachchat/pkg/delivery"
	"github.com/go-go-golems/coachchat/pkg/effects"
	"github.com/go-go-golems/coachchat/pkg/persistence/chatstore"
	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

// DefaultPresentationWindow is how old a coach message may be and still be
// presented as if typed right now.
const DefaultPresentationWindow = 5 * time.Minute

// Outcome tells what Handle did with a message.
type Outcome int

const (
	OutcomeAdded Outcome = iota
	OutcomeDelayed
	OutcomeUpdated
	OutcomeIgnored
	OutcomeDropped
)

type Watcher struct {
	queue     *Queue
	chat      chatstore.Store
	scheduler *delivery.Scheduler
	sink      effects.Sink
	clock     delivery.Clock
	window    time.Duration
	lock      sync.Locker

	mu    sync.Mutex
	ready chan struct{}
}

type WatcherOption func(*Watcher)

// WithLock serializes Handle with other mutations of the chat.
func WithLock(l sync.Locker) WatcherOption {
	return func(w *Watcher) { w.lock = l }
}

// WithPresentationWindow overrides DefaultPresentationWindow.
func WithPresentationWindow(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.window = d
		}
	}
}

func WithClock(c delivery.Clock) WatcherOption {
	return func(w *Watcher) {
		if c != nil {
			w.clock = c
		}
	}
}

func NewWatcher(queue *Queue, chat chatstore.Store, scheduler *delivery.Scheduler, sink effects.Sink, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		queue:     queue,
		chat:      chat,
		scheduler: scheduler,
		sink:      sink,
		clock:     delivery.RealClock(),
		window:    DefaultPresentationWindow,
		lock:      &sync.Mutex{},
		ready:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	if w.sink == nil {
		w.sink = effects.Discard
	}
	return w
}

// Release lets Run start consuming. It is called once history hydration is done.
func (w *Watcher) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

// Hold re-arms the gate so Run stops consuming after the current message
// until Release is called again.
func (w *Watcher) Hold() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
		w.ready = make(chan struct{})
	default:
	}
}

func (w *Watcher) gate() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// Run consumes the queue until ctx is done or the queue is closed.
func (w *Watcher) Run(ctx context.Context) error {
	if w == nil || w.queue == nil {
		return errors.New("live watcher: nil queue")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.gate():
		}

		msg, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return nil
			}
			return err
		}

		if _, err := w.Handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().
				Str("component", "live_watcher").
				Str("client_id", msg.ClientID).
				Err(err).
				Msg("failed to present message")
		}
	}
}

// Handle reconciles one message with the chat, then tells the sink whether
// more messages are already queued.
func (w *Watcher) Handle(ctx context.Context, msg servermsg.ServerMessage) (Outcome, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	outcome, err := w.handle(ctx, msg)
	if err != nil {
		return outcome, err
	}
	if err := w.sink.Emit(ctx, effects.FurtherExpected{Expected: !w.queue.Empty()}); err != nil {
		return outcome, errors.Wrap(err, "live watcher: further expected")
	}
	return outcome, nil
}

func (w *Watcher) handle(ctx context.Context, msg servermsg.ServerMessage) (Outcome, error) {
	known, ok, err := chatstore.KnownVersion(ctx, w.chat, msg.ClientID)
	if err != nil {
		return OutcomeDropped, errors.Wrap(err, "live watcher: known version")
	}

	if ok {
		if msg.ClientVersion <= known {
			log.Debug().
				Str("component", "live_watcher").
				Str("client_id", msg.ClientID).
				Int64("known_version", known).
				Int64("version", msg.ClientVersion).
				Msg("ignoring stale message version")
			return OutcomeIgnored, nil
		}
		res, err := classifier.Classify(msg, nil)
		if err != nil {
			w.logDropped(msg, err)
			return OutcomeDropped, nil
		}
		if err := w.sink.Emit(ctx, effects.UpdateMessage{ClientID: msg.ClientID, Messages: res.Messages}); err != nil {
			return OutcomeDropped, errors.Wrap(err, "live watcher: update")
		}
		return OutcomeUpdated, nil
	}

	var fake *int64
	if !msg.ClientRead {
		fake = w.presentationTimestamp(msg)
		if err := w.sink.Emit(ctx, effects.MarkRead{ClientID: msg.ClientID, FakeTimestamp: fake}); err != nil {
			return OutcomeDropped, errors.Wrap(err, "live watcher: mark read")
		}
	}

	res, err := classifier.Classify(msg, fake)
	if err != nil {
		w.logDropped(msg, err)
		return OutcomeDropped, nil
	}
	if res.BackpackInfo != nil {
		if err := w.sink.Emit(ctx, effects.BackpackInfoAdded{Info: *res.BackpackInfo}); err != nil {
			return OutcomeDropped, errors.Wrap(err, "live watcher: backpack info")
		}
	}

	if fake == nil {
		return OutcomeAdded, w.scheduler.Insert(ctx, res.Messages, false)
	}
	return OutcomeDelayed, w.scheduler.Deliver(ctx, res.Messages)
}

// presentationTimestamp returns now for recent coach messages so they are
// presented as typed live, nil otherwise.
func (w *Watcher) presentationTimestamp(msg servermsg.ServerMessage) *int64 {
	if msg.Author != servermsg.AuthorServer {
		return nil
	}
	now := w.clock.Now().UnixMilli()
	if int64(msg.Timestamp)+w.window.Milliseconds() > now {
		return &now
	}
	return nil
}

func (w *Watcher) logDropped(msg servermsg.ServerMessage, err error) {
	log.Warn().
		Str("component", "live_watcher").
		Str("client_id", msg.ClientID).
		Err(err).
		Msg("dropping unclassifiable message")
}
