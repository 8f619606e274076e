// Package chatstore holds the chat records currently rendered for a user, in
// display order. It is the projection of add/update effects and the source of
// the client-known version of each server message.
package chatstore

import (
	"context"

	"github.com/go-go-golems/coachchat/pkg/chatmsg"
)

// Store is the rendered chat state.
type Store interface {
	// Add inserts a record at the bottom, or at the top when addToStart is
	// set. Adding an id that is already present replaces it in place.
	Add(ctx context.Context, msg chatmsg.Message, addToStart bool) error
	// Update replaces an existing record and reports whether it was found.
	Update(ctx context.Context, msg chatmsg.Message) (bool, error)
	Get(ctx context.Context, id string) (chatmsg.Message, bool, error)
	// List returns the records top to bottom.
	List(ctx context.Context) ([]chatmsg.Message, error)
	Reset(ctx context.Context) error
	Close() error
}

type evictionIndex interface {
	EvictedVersion(id string) (int64, bool)
}

// KnownVersion returns the client version of the first record rendered for
// clientID, including records a bounded store has evicted.
func KnownVersion(ctx context.Context, s Store, clientID string) (int64, bool, error) {
	id := chatmsg.FirstID(clientID)
	m, ok, err := s.Get(ctx, id)
	if err != nil {
		return 0, false, err
	}
	if ok {
		return m.Custom.ClientVersion, true, nil
	}
	if ev, isIndex := s.(evictionIndex); isIndex {
		v, gone := ev.EvictedVersion(id)
		return v, gone, nil
	}
	return 0, false, nil
}
