// Package session wires one conversation: the stores, the history paginator,
// the live watcher and the sinks that carry effects to clients and backend.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/coachchat/pkg/config"
	"github.com/go-go-golems/coachchat/pkg/delivery"
	"github.com/go-go-golems/coachchat/pkg/effects"
	"github.com/go-go-golems/coachchat/pkg/history"
	"github.com/go-go-golems/coachchat/pkg/live"
	"github.com/go-go-golems/coachchat/pkg/persistence/chatstore"
	"github.com/go-go-golems/coachchat/pkg/persistence/messagestore"
	"github.com/go-go-golems/coachchat/pkg/servermsg"
	"github.com/go-go-golems/coachchat/pkg/transport"
	"github.com/go-go-golems/coachchat/pkg/webview"
)

type Session struct {
	ID string

	stores    Stores
	state     *history.State
	queue     *live.Queue
	scheduler *delivery.Scheduler
	paginator *history.Paginator
	watcher   *live.Watcher
	feed      *transport.Feed
	sink      effects.Sink
	resetters []func()

	// mu serializes history loads, resets and live handling.
	mu sync.Mutex

	initMu      sync.Mutex
	initialized bool
}

type Option func(*options)

type options struct {
	id        string
	clock     delivery.Clock
	sinks     []effects.Sink
	resetters []func()
	pubsub    *transport.PubSub
	inbound   string
	outbound  string
}

func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

func WithClock(c delivery.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithSink adds a sink that observes every effect after the stores applied it.
func WithSink(s effects.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithResetHook registers a function called by Reset, e.g. to drop a replay
// buffer.
func WithResetHook(fn func()) Option {
	return func(o *options) { o.resetters = append(o.resetters, fn) }
}

// WithTransport feeds the session from inboundTopic and publishes backend
// effects on outboundTopic.
func WithTransport(ps *transport.PubSub, inboundTopic, outboundTopic string) Option {
	return func(o *options) {
		o.pubsub = ps
		o.inbound = inboundTopic
		o.outbound = outboundTopic
	}
}

// New assembles a session on top of stores. Effects flow through the chat
// projector and the read-receipt writer first, then to the backend publisher
// and any extra sinks.
func New(cfg *config.Config, stores Stores, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if stores.Messages == nil || stores.Chat == nil {
		return nil, errors.New("session: stores are required")
	}
	o := options{id: uuid.NewString(), clock: delivery.RealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	sinks := effects.Fanout{
		chatstore.NewProjector(stores.Chat),
		receipts{store: stores.Messages},
	}
	if o.pubsub != nil && o.outbound != "" {
		sinks = append(sinks, transport.NewOutbound(o.pubsub.Publisher, o.outbound))
	}
	sinks = append(sinks, o.sinks...)

	s := &Session{
		ID:        o.id,
		stores:    stores,
		state:     history.NewState(),
		queue:     live.NewQueue(),
		sink:      sinks,
		resetters: o.resetters,
	}
	s.scheduler = delivery.NewScheduler(cfg.DeliveryOptions(), o.clock, s.sink)
	s.paginator = history.NewPaginator(cfg.HistoryOptions(), stores.Messages, s.state, s.sink)
	s.watcher = live.NewWatcher(s.queue, stores.Chat, s.scheduler, s.sink,
		live.WithLock(&s.mu),
		live.WithClock(o.clock),
		live.WithPresentationWindow(cfg.TypingIndicator.DelayedPresentationWindow),
	)
	if o.pubsub != nil && o.inbound != "" {
		s.feed = transport.NewFeed(o.pubsub.Subscriber, o.inbound, stores.Messages, s.queue)
	}
	return s, nil
}

// Run consumes live messages, and the transport feed when configured, until
// ctx is done.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.watcher.Run(ctx) })
	if s.feed != nil {
		g.Go(func() error { return s.feed.Run(ctx) })
	}
	log.Info().Str("component", "session").Str("session_id", s.ID).Msg("session running")
	err := g.Wait()
	log.Info().Str("component", "session").Str("session_id", s.ID).Msg("session stopped")
	return err
}

// Drain presents every queued message synchronously and returns how many it
// handled. Batch replays use it instead of Run.
func (s *Session) Drain(ctx context.Context) (int, error) {
	n := 0
	for !s.queue.Empty() {
		msg, err := s.queue.Pop(ctx)
		if err != nil {
			return n, err
		}
		if _, err := s.watcher.Handle(ctx, msg); err != nil {
			return n, errors.Wrapf(err, "session: present %s", msg.ClientID)
		}
		n++
	}
	return n, nil
}

// Close stops accepting live messages. Stores are owned by the caller.
func (s *Session) Close() {
	s.queue.Close()
}

// Ingest stores one server message and queues it for live presentation if it
// is new or changed. Messages ingested before Initialize are buffered.
func (s *Session) Ingest(ctx context.Context, msg servermsg.ServerMessage) (messagestore.Outcome, error) {
	if err := msg.Validate(); err != nil {
		return messagestore.Unchanged, err
	}
	outcome, err := s.stores.Messages.Upsert(ctx, msg)
	if err != nil {
		return outcome, errors.Wrapf(err, "session: store %s", msg.ClientID)
	}
	if outcome.Changed() {
		if err := s.queue.Push(msg); err != nil {
			return outcome, errors.Wrapf(err, "session: enqueue %s", msg.ClientID)
		}
	}
	return outcome, nil
}

// Hydrate stores already persisted messages without presenting them live.
// It is meant for restoring history before Initialize.
func (s *Session) Hydrate(ctx context.Context, msgs []servermsg.ServerMessage) error {
	for _, m := range msgs {
		if _, err := s.stores.Messages.Upsert(ctx, m); err != nil {
			return errors.Wrapf(err, "session: hydrate %s", m.ClientID)
		}
	}
	return nil
}

// Initialize runs once history hydration has completed: it shows the most
// recent page, announces initialization and releases the live watcher.
// Calls with hydrationCompleted=false, and repeated calls, do nothing.
func (s *Session) Initialize(ctx context.Context, hydrationCompleted bool) error {
	if !hydrationCompleted {
		log.Debug().Str("component", "session").Str("session_id", s.ID).Msg("hydration incomplete, not initializing")
		return nil
	}
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return nil
	}

	s.mu.Lock()
	_, err := s.paginator.LoadEarlier(ctx)
	if err == nil {
		err = s.sink.Emit(ctx, effects.Initialized{})
	}
	s.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "session: initialize")
	}

	s.initialized = true
	s.watcher.Release()
	log.Info().Str("component", "session").Str("session_id", s.ID).Int("oldest_shown", s.state.OldestShown()).Msg("session initialized")
	return nil
}

// LoadEarlier shows the next page of older messages.
func (s *Session) LoadEarlier(ctx context.Context) error {
	_, err := s.LoadEarlierPage(ctx)
	return err
}

func (s *Session) LoadEarlierPage(ctx context.Context) (history.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paginator.LoadEarlier(ctx)
}

// HandleWebViewEvent forwards an event posted by an embedded web page.
func (s *Session) HandleWebViewEvent(ctx context.Context, data string) error {
	return webview.HandleEvent(ctx, data, s.sink)
}

// Reset reinitializes the session: the pagination cursor, the de-duplication
// set and the shown chat are cleared and live presentation is held until the
// next Initialize. Stored server messages are kept.
func (s *Session) Reset(ctx context.Context) error {
	s.watcher.Hold()
	s.initMu.Lock()
	defer s.initMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Reset()
	if err := s.stores.Chat.Reset(ctx); err != nil {
		return errors.Wrap(err, "session: reset chat")
	}
	for _, fn := range s.resetters {
		fn()
	}
	s.initialized = false
	log.Info().Str("component", "session").Str("session_id", s.ID).Msg("session reset")
	return nil
}

func (s *Session) Chat() chatstore.Store        { return s.stores.Chat }
func (s *Session) Messages() messagestore.Store { return s.stores.Messages }
func (s *Session) State() *history.State        { return s.state }
func (s *Session) Queue() *live.Queue           { return s.queue }
