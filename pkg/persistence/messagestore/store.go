// Package messagestore keeps the server messages of one user in arrival
// order. A message is stored once per client-id; newer client versions
// replace older ones without changing the arrival position.
package messagestore

import (
	"context"

	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

// Outcome describes what an Upsert did.
type Outcome int

const (
	// Inserted means the client-id was new and got the next arrival position.
	Inserted Outcome = iota
	// Updated means a higher client version replaced the stored one.
	Updated
	// Unchanged means the same version with identical content was redelivered.
	Unchanged
	// Stale means the incoming version is not newer than the stored one.
	Stale
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	case Stale:
		return "stale"
	}
	return "unknown"
}

// Changed reports whether the stored message was written.
func (o Outcome) Changed() bool {
	return o == Inserted || o == Updated
}

// Store is the ordered server-message store.
type Store interface {
	Upsert(ctx context.Context, msg servermsg.ServerMessage) (Outcome, error)
	// MarkRead flags a message as read on the client, recording the
	// presentation timestamp when one was faked.
	MarkRead(ctx context.Context, clientID string, fakeTimestamp *int64) error
	Get(ctx context.Context, clientID string) (servermsg.ServerMessage, bool, error)
	// List returns all messages ordered by arrival.
	List(ctx context.Context) ([]servermsg.ServerMessage, error)
	Reset(ctx context.Context) error
	Close() error
}

// keepClientState carries the client-side read flag and presentation
// timestamp of stored over to an incoming newer version.
func keepClientState(stored, incoming servermsg.ServerMessage) servermsg.ServerMessage {
	incoming.ClientRead = incoming.ClientRead || stored.ClientRead
	if incoming.FakeTimestamp == nil && stored.FakeTimestamp != nil {
		v := *stored.FakeTimestamp
		incoming.FakeTimestamp = &v
	}
	return incoming
}

// decide picks the upsert outcome for an existing record.
func decide(stored servermsg.ServerMessage, storedHash string, incoming servermsg.ServerMessage, incomingHash string) Outcome {
	switch {
	case incoming.ClientVersion > stored.ClientVersion:
		return Updated
	case incoming.ClientVersion == stored.ClientVersion && storedHash == incomingHash:
		return Unchanged
	default:
		return Stale
	}
}
