package sem

import "sync"

// DefaultReplayFrames is the backlog size used when none is configured.
const DefaultReplayFrames = 1000

// FrameBuffer is the replay backlog handed to a chat client when it
// (re)connects. It is a ring: once full, each new frame overwrites the
// oldest one.
type FrameBuffer struct {
	mu    sync.Mutex
	ring  [][]byte
	next  int
	count int
}

func NewFrameBuffer(limit int) *FrameBuffer {
	if limit <= 0 {
		limit = DefaultReplayFrames
	}
	return &FrameBuffer{ring: make([][]byte, limit)}
}

// Add copies frame into the backlog. Empty frames are ignored.
func (b *FrameBuffer) Add(frame []byte) {
	if b == nil || len(frame) == 0 {
		return
	}
	cp := append([]byte(nil), frame...)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring[b.next] = cp
	b.next = (b.next + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}
}

// Snapshot returns copies of the buffered frames, oldest first.
func (b *FrameBuffer) Snapshot() [][]byte {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, 0, b.count)
	first := (b.next - b.count + len(b.ring)) % len(b.ring)
	for i := 0; i < b.count; i++ {
		f := b.ring[(first+i)%len(b.ring)]
		out = append(out, append([]byte(nil), f...))
	}
	return out
}

// Reset empties the backlog, e.g. when the chat is rebuilt from scratch.
func (b *FrameBuffer) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.ring {
		b.ring[i] = nil
	}
	b.next, b.count = 0, 0
}
