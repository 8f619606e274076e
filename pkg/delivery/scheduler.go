// Package delivery presents chat records to the user, either immediately or
// paced like a human coach typing them.
package delivery

import (
	"context"
	"math"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/coachchat/pkg/chatmsg"
	"github.com/go-go-golems/coachchat/pkg/effects"
)

// Options configures the typing simulation.
type Options struct {
	// CoachTypingSpeed is in words per minute; a word is five characters.
	CoachTypingSpeed        int
	MaxTypingDelay          time.Duration
	InteractiveElementDelay time.Duration
	FastMode                bool
	FastModeDelay           time.Duration
}

func DefaultOptions() Options {
	return Options{
		CoachTypingSpeed:        700,
		MaxTypingDelay:          1500 * time.Millisecond,
		InteractiveElementDelay: 500 * time.Millisecond,
		FastModeDelay:           50 * time.Millisecond,
	}
}

// Scheduler emits chat records to a sink in input order.
type Scheduler struct {
	opts  Options
	clock Clock
	sink  effects.Sink
}

func NewScheduler(opts Options, clock Clock, sink effects.Sink) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if sink == nil {
		sink = effects.Discard
	}
	return &Scheduler{opts: opts, clock: clock, sink: sink}
}

// TypingDelay is the time the coach needs to type text, capped at
// MaxTypingDelay.
func (s *Scheduler) TypingDelay(text string) time.Duration {
	cpm := s.opts.CoachTypingSpeed * 5
	if cpm <= 0 {
		return s.opts.MaxTypingDelay
	}
	ms := float64(utf8.RuneCountInString(text)) * 60000 / float64(cpm)
	if limit := float64(s.opts.MaxTypingDelay / time.Millisecond); ms > limit {
		ms = limit
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// Insert emits records without any delay. Hidden commands are executed only
// when appending; history pages (addToStart) never fire commands.
func (s *Scheduler) Insert(ctx context.Context, msgs []chatmsg.Message, addToStart bool) error {
	for _, m := range msgs {
		if !addToStart && m.Kind == chatmsg.KindHiddenCommand {
			if err := s.execute(ctx, m); err != nil {
				return err
			}
		}
		if err := s.sink.Emit(ctx, effects.AddMessage{Message: m, AddToStart: addToStart}); err != nil {
			return errors.Wrapf(err, "delivery: add %s", m.ID)
		}
	}
	return nil
}

// Deliver emits records paced like a typing coach. Records written by the
// user are emitted at once. A cancelled ctx stops delivery before the next
// record is emitted; a typing indicator that was switched on is switched off.
func (s *Scheduler) Deliver(ctx context.Context, msgs []chatmsg.Message) error {
	for _, m := range msgs {
		m = m.Clone()
		m.Custom.ShouldAnimate = true

		if m.Author != chatmsg.AuthorCoach {
			if m.Kind == chatmsg.KindHiddenCommand {
				if err := s.execute(ctx, m); err != nil {
					return err
				}
			}
			if err := s.add(ctx, m); err != nil {
				return err
			}
			continue
		}

		if err := s.deliverCoach(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) deliverCoach(ctx context.Context, m chatmsg.Message) error {
	var typed time.Duration
	if m.Kind == chatmsg.KindText && m.Custom.Visible {
		typed = s.TypingDelay(m.Text)
		if err := s.sink.Emit(ctx, effects.Typing{On: true}); err != nil {
			return errors.Wrap(err, "delivery: typing on")
		}
		if err := s.clock.Sleep(ctx, s.before(typed)); err != nil {
			s.abortTyping(ctx, m)
			return err
		}
		if err := s.sink.Emit(ctx, effects.Typing{On: false}); err != nil {
			return errors.Wrap(err, "delivery: typing off")
		}
	} else {
		pause := s.opts.InteractiveElementDelay
		if s.opts.FastMode {
			pause = s.opts.FastModeDelay
		}
		if err := s.clock.Sleep(ctx, pause); err != nil {
			return err
		}
	}

	if err := s.add(ctx, m); err != nil {
		return err
	}
	return s.clock.Sleep(ctx, s.after(typed))
}

func (s *Scheduler) before(typed time.Duration) time.Duration {
	if s.opts.FastMode {
		return s.opts.FastModeDelay
	}
	return floorMillis(float64(typed) * 4 / 5)
}

func (s *Scheduler) after(typed time.Duration) time.Duration {
	if s.opts.FastMode {
		return s.opts.FastModeDelay
	}
	return floorMillis(float64(typed) / 5)
}

func floorMillis(ns float64) time.Duration {
	return time.Duration(math.Floor(ns/float64(time.Millisecond))) * time.Millisecond
}

func (s *Scheduler) abortTyping(ctx context.Context, m chatmsg.Message) {
	if err := s.sink.Emit(context.WithoutCancel(ctx), effects.Typing{On: false}); err != nil {
		log.Warn().
			Str("component", "delivery").
			Str("message_id", m.ID).
			Err(err).
			Msg("could not switch off typing indicator after cancellation")
	}
}

func (s *Scheduler) add(ctx context.Context, m chatmsg.Message) error {
	if err := s.sink.Emit(ctx, effects.AddMessage{Message: m}); err != nil {
		return errors.Wrapf(err, "delivery: add %s", m.ID)
	}
	return nil
}

func (s *Scheduler) execute(ctx context.Context, m chatmsg.Message) error {
	if err := s.sink.Emit(ctx, effects.ExecuteCommand{MessageID: chatmsg.ClientIDOf(m.ID)}); err != nil {
		return errors.Wrapf(err, "delivery: execute %s", m.ID)
	}
	return nil
}
