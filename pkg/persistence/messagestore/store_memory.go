package messagestore

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

// InMemoryStore is a Store backed by a slice in arrival order.
type InMemoryStore struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*memRecord
}

type memRecord struct {
	msg  servermsg.ServerMessage
	hash string
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: map[string]*memRecord{}}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) Upsert(_ context.Context, msg servermsg.ServerMessage) (Outcome, error) {
	if s == nil {
		return Stale, errors.New("in-memory message store: nil store")
	}
	if err := msg.Validate(); err != nil {
		return Stale, errors.Wrap(err, "in-memory message store")
	}
	hash, err := ContentHash(msg)
	if err != nil {
		return Stale, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[msg.ClientID]
	if !ok {
		s.byID[msg.ClientID] = &memRecord{msg: cloneServerMessage(msg), hash: hash}
		s.order = append(s.order, msg.ClientID)
		return Inserted, nil
	}
	outcome := decide(rec.msg, rec.hash, msg, hash)
	if outcome == Updated {
		rec.msg = cloneServerMessage(keepClientState(rec.msg, msg))
		rec.hash = hash
	}
	return outcome, nil
}

func (s *InMemoryStore) MarkRead(_ context.Context, clientID string, fakeTimestamp *int64) error {
	if s == nil {
		return errors.New("in-memory message store: nil store")
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return errors.New("in-memory message store: clientID is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[clientID]
	if !ok {
		return errors.Errorf("in-memory message store: unknown message %q", clientID)
	}
	rec.msg.ClientRead = true
	if fakeTimestamp != nil {
		v := servermsg.Millis(*fakeTimestamp)
		rec.msg.FakeTimestamp = &v
	}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, clientID string) (servermsg.ServerMessage, bool, error) {
	if s == nil {
		return servermsg.ServerMessage{}, false, errors.New("in-memory message store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[clientID]
	if !ok {
		return servermsg.ServerMessage{}, false, nil
	}
	return cloneServerMessage(rec.msg), true, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]servermsg.ServerMessage, error) {
	if s == nil {
		return nil, errors.New("in-memory message store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]servermsg.ServerMessage, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneServerMessage(s.byID[id].msg))
	}
	return out, nil
}

func (s *InMemoryStore) Reset(_ context.Context) error {
	if s == nil {
		return errors.New("in-memory message store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.byID = map[string]*memRecord{}
	return nil
}

func cloneServerMessage(m servermsg.ServerMessage) servermsg.ServerMessage {
	if m.FakeTimestamp != nil {
		v := *m.FakeTimestamp
		m.FakeTimestamp = &v
	}
	if m.AnswerFormat != nil {
		f := *m.AnswerFormat
		f.Options.Pairs = append([]servermsg.Option(nil), f.Options.Pairs...)
		m.AnswerFormat = &f
	}
	return m
}
