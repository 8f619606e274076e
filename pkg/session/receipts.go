package session

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-go-golems/coachchat/pkg/effects"
	"github.com/go-go-golems/coachchat/pkg/persistence/messagestore"
)

// receipts applies read receipts to the message store so a message is only
// presented as new once.
type receipts struct {
	store messagestore.Store
}

func (r receipts) Emit(ctx context.Context, e effects.Effect) error {
	mr, ok := e.(effects.MarkRead)
	if !ok {
		return nil
	}
	if r.store == nil {
		return errors.New("session: nil message store")
	}
	return errors.Wrapf(r.store.MarkRead(ctx, mr.ClientID, mr.FakeTimestamp), "session: mark %s read", mr.ClientID)
}
