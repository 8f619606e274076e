package ws

import (
	"context"
	"sync"

	"github.com/go-go-golems/coachchat/pkg/effects"
	"github.com/go-go-golems/coachchat/pkg/sem"
)

// Broadcaster is an effects.Sink that encodes effects as SEM frames, keeps
// them for replay and pushes them to every connected client.
type Broadcaster struct {
	mu     sync.Mutex
	pool   *Pool
	buffer *sem.FrameBuffer
}

func NewBroadcaster(pool *Pool, buffer *sem.FrameBuffer) *Broadcaster {
	return &Broadcaster{pool: pool, buffer: buffer}
}

func (b *Broadcaster) Pool() *Pool { return b.pool }

func (b *Broadcaster) Emit(_ context.Context, e effects.Effect) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range sem.Frames(e) {
		b.buffer.Add(f)
		b.pool.Broadcast(f)
	}
	return nil
}

// Attach registers conn and replays every buffered frame to it, oldest first.
// Frames emitted concurrently are delivered exactly once, after the replay.
func (b *Broadcaster) Attach(conn Conn) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pool.AddWithBacklog(conn, b.buffer.Snapshot())
}

// Reset drops the replay buffer.
func (b *Broadcaster) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.buffer.Reset()
	b.mu.Unlock()
}
