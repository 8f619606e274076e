package live

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

// ErrQueueClosed is returned by Pop once the queue is closed and drained.
var ErrQueueClosed = errors.New("live: queue closed")

// Queue is an unbounded FIFO of new-or-updated server messages. Push never
// blocks and never drops.
type Queue struct {
	mu     sync.Mutex
	items  []servermsg.ServerMessage
	notify chan struct{}
	closed bool
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends a message. Pushing to a closed queue is an error.
func (q *Queue) Push(msg servermsg.ServerMessage) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the oldest message, blocking until one is available.
func (q *Queue) Pop(ctx context.Context) (servermsg.ServerMessage, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = servermsg.ServerMessage{}
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return msg, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return servermsg.ServerMessage{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return servermsg.ServerMessage{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len returns the number of buffered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether no message is buffered.
func (q *Queue) Empty() bool { return q.Len() == 0 }

// Close stops accepting messages. Buffered messages can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}
