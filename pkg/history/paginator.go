// Package history pages the stored server messages into the chat, newest
// first, until enough unread content is shown.
package history

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/coachchat/pkg/chatmsg"
	"github.com/go-go-golems/coachchat/pkg/classifier"
	"github.com/go-go-golems/coachchat/pkg/effects"
	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

// Source enumerates the stored server messages in arrival order.
type Source interface {
	List(ctx context.Context) ([]servermsg.ServerMessage, error)
}

// Options configures page sizes, counted in visible chat records.
type Options struct {
	InitialMinimum int
	Increment      int
}

func DefaultOptions() Options {
	return Options{InitialMinimum: 10, Increment: 10}
}

// Page summarizes one LoadEarlier call.
type Page struct {
	Inserted    int
	OldestShown int
	HasEarlier  bool
	Commands    []string
}

type Paginator struct {
	opts   Options
	source Source
	state  *State
	sink   effects.Sink
}

func NewPaginator(opts Options, source Source, state *State, sink effects.Sink) *Paginator {
	if state == nil {
		state = NewState()
	}
	if sink == nil {
		sink = effects.Discard
	}
	return &Paginator{opts: opts, source: source, state: state, sink: sink}
}

// State returns the pagination state owned by the paginator.
func (p *Paginator) State() *State { return p.state }

// LoadEarlier shows the next page of older messages. The first call shows the
// most recent page.
func (p *Paginator) LoadEarlier(ctx context.Context) (Page, error) {
	if p == nil || p.source == nil {
		return Page{}, errors.New("history: nil source")
	}
	messages, err := p.source.List(ctx)
	if err != nil {
		return Page{}, errors.Wrap(err, "history: list messages")
	}

	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	target, start := p.opts.Increment, p.state.oldestShown-1
	if p.state.oldestShown == -1 {
		target, start = p.opts.InitialMinimum, len(messages)-1
	}
	log.Debug().
		Str("component", "history").
		Int("target", target).
		Int("start", start).
		Msg("loading earlier messages")

	var (
		page       Page
		commands   []string
		added      int
		stickyOnly bool
	)
	for i := start; i >= 0; i-- {
		msg := messages[i]
		expansion := p.classify(msg)

		if added >= target && msg.ClientRead {
			stickyOnly = true
		}

		if !stickyOnly {
			if len(expansion.Messages) == 1 && expansion.Messages[0].Kind == chatmsg.KindHiddenCommand {
				commands = append([]string{chatmsg.ClientIDOf(expansion.Messages[0].ID)}, commands...)
			}
			p.state.oldestShown = i
			if !msg.ClientRead {
				if err := p.sink.Emit(ctx, effects.MarkRead{ClientID: msg.ClientID}); err != nil {
					return page, errors.Wrapf(err, "history: mark %s read", msg.ClientID)
				}
			}
			for _, m := range expansion.Messages {
				if m.Custom.Visible {
					added++
				}
			}
		}

		if info := expansion.BackpackInfo; info != nil && p.state.markBackpack(info.ID) {
			if err := p.sink.Emit(ctx, effects.BackpackInfoAdded{Info: *info}); err != nil {
				return page, errors.Wrap(err, "history: backpack info")
			}
		}

		for j := len(expansion.Messages) - 1; j >= 0; j-- {
			m := expansion.Messages[j]
			if stickyOnly && !m.Custom.Sticky {
				continue
			}
			if !p.state.markAdded(m.ID) {
				continue
			}
			if err := p.sink.Emit(ctx, effects.AddMessage{Message: m, AddToStart: true}); err != nil {
				return page, errors.Wrapf(err, "history: add %s", m.ID)
			}
			page.Inserted++
		}
	}

	for _, id := range commands {
		if err := p.sink.Emit(ctx, effects.ExecuteCommand{MessageID: id}); err != nil {
			return page, errors.Wrapf(err, "history: execute %s", id)
		}
	}
	page.Commands = commands

	page.HasEarlier = p.state.oldestShown > 0
	if !page.HasEarlier {
		p.state.oldestShown = 0
	}
	page.OldestShown = p.state.oldestShown
	if err := p.sink.Emit(ctx, effects.LoadEarlier{Visible: page.HasEarlier}); err != nil {
		return page, errors.Wrap(err, "history: load earlier control")
	}
	return page, nil
}

func (p *Paginator) classify(msg servermsg.ServerMessage) classifier.Result {
	res, err := classifier.Classify(msg, nil)
	if err != nil {
		log.Warn().
			Str("component", "history").
			Str("client_id", msg.ClientID).
			Err(err).
			Msg("dropping unclassifiable message")
		return classifier.Result{}
	}
	return res
}
