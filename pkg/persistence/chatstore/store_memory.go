package chatstore

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/coachchat/pkg/chatmsg"
)

// InMemoryStore is a size-limited, in-memory Store. When the limit is
// exceeded the topmost (oldest shown) records are evicted. Evicted records
// keep their client version: updates to them are absorbed instead of
// re-appending the record, and KnownVersion still reports them.
type InMemoryStore struct {
	mu         sync.Mutex
	maxRecords int
	records    []chatmsg.Message
	index      map[string]int
	evicted    map[string]int64
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore(maxRecords int) *InMemoryStore {
	if maxRecords <= 0 {
		maxRecords = 5000
	}
	return &InMemoryStore{maxRecords: maxRecords, index: map[string]int{}, evicted: map[string]int64{}}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) Add(_ context.Context, msg chatmsg.Message, addToStart bool) error {
	if s == nil {
		return errors.New("in-memory chat store: nil store")
	}
	if strings.TrimSpace(msg.ID) == "" {
		return errors.New("in-memory chat store: message id is empty")
	}
	if msg.Kind == "" {
		return errors.New("in-memory chat store: message kind is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[msg.ID]; ok {
		s.records[i] = msg.Clone()
		return nil
	}
	delete(s.evicted, msg.ID)
	if addToStart {
		s.records = append([]chatmsg.Message{msg.Clone()}, s.records...)
	} else {
		s.records = append(s.records, msg.Clone())
	}
	if over := len(s.records) - s.maxRecords; over > 0 {
		for _, m := range s.records[:over] {
			s.evicted[m.ID] = m.Custom.ClientVersion
		}
		s.records = append([]chatmsg.Message(nil), s.records[over:]...)
	}
	s.reindex()
	return nil
}

func (s *InMemoryStore) reindex() {
	s.index = make(map[string]int, len(s.records))
	for i, m := range s.records {
		s.index[m.ID] = i
	}
}

func (s *InMemoryStore) Update(_ context.Context, msg chatmsg.Message) (bool, error) {
	if s == nil {
		return false, errors.New("in-memory chat store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[msg.ID]
	if !ok {
		_, gone := s.evicted[msg.ID]
		if !gone {
			_, gone = s.evicted[chatmsg.FirstID(chatmsg.ClientIDOf(msg.ID))]
		}
		if gone {
			s.evicted[msg.ID] = msg.Custom.ClientVersion
			return true, nil
		}
		return false, nil
	}
	s.records[i] = msg.Clone()
	return true, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (chatmsg.Message, bool, error) {
	if s == nil {
		return chatmsg.Message{}, false, errors.New("in-memory chat store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return chatmsg.Message{}, false, nil
	}
	return s.records[i].Clone(), true, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]chatmsg.Message, error) {
	if s == nil {
		return nil, errors.New("in-memory chat store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chatmsg.Message, 0, len(s.records))
	for _, m := range s.records {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (s *InMemoryStore) Reset(_ context.Context) error {
	if s == nil {
		return errors.New("in-memory chat store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.index = map[string]int{}
	s.evicted = map[string]int64{}
	return nil
}

// EvictedVersion returns the last client version of an evicted record.
func (s *InMemoryStore) EvictedVersion(id string) (int64, bool) {
	if s == nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.evicted[id]
	return v, ok
}
