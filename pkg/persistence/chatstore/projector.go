package chatstore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/coachchat/pkg/effects"
)

// Projector applies add/update effects to a Store. Other effects pass
// through untouched.
type Projector struct {
	store Store
}

var _ effects.Sink = &Projector{}

func NewProjector(store Store) *Projector {
	return &Projector{store: store}
}

func (p *Projector) Emit(ctx context.Context, e effects.Effect) error {
	if p == nil || p.store == nil {
		return errors.New("chat projector: nil store")
	}
	switch v := e.(type) {
	case effects.AddMessage:
		return p.store.Add(ctx, v.Message, v.AddToStart)
	case effects.UpdateMessage:
		for _, m := range v.Messages {
			found, err := p.store.Update(ctx, m)
			if err != nil {
				return err
			}
			if found {
				continue
			}
			log.Debug().
				Str("component", "chat_projector").
				Str("client_id", v.ClientID).
				Str("message_id", m.ID).
				Msg("updated expansion has a new record; appending")
			if err := p.store.Add(ctx, m, false); err != nil {
				return err
			}
		}
	}
	return nil
}
