package history

import "sync"

// State is the pagination state of one chat session. It lives as long as the
// session and is cleared only by Reset.
type State struct {
	mu sync.Mutex
	// oldestShown is the arrival index of the oldest non-sticky message
	// shown so far, or -1 before the first page.
	oldestShown int
	added       map[string]struct{}
	backpack    map[string]struct{}
}

func NewState() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset forgets everything shown so far.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oldestShown = -1
	s.added = map[string]struct{}{}
	s.backpack = map[string]struct{}{}
}

// OldestShown returns the pagination cursor.
func (s *State) OldestShown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.oldestShown
}

// Added reports whether a chat record was already inserted by a history page.
func (s *State) Added(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.added[id]
	return ok
}

func (s *State) markAdded(id string) bool {
	if _, ok := s.added[id]; ok {
		return false
	}
	s.added[id] = struct{}{}
	return true
}

func (s *State) markBackpack(id string) bool {
	if _, ok := s.backpack[id]; ok {
		return false
	}
	s.backpack[id] = struct{}{}
	return true
}
