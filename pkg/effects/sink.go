package effects

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Sink receives effects in emission order. Emit may block; a returned error
// aborts the operation that produced the effect.
type Sink interface {
	Emit(ctx context.Context, e Effect) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, e Effect) error

func (f SinkFunc) Emit(ctx context.Context, e Effect) error {
	if f == nil {
		return nil
	}
	return f(ctx, e)
}

// Discard drops every effect.
var Discard Sink = SinkFunc(func(context.Context, Effect) error { return nil })

// Fanout forwards each effect to every sink in order. The first error stops
// the fan-out.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, e Effect) error {
	for i, s := range f {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, e); err != nil {
			return errors.Wrapf(err, "effects: sink %d", i)
		}
	}
	return nil
}

// Recorder keeps every emitted effect. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	effects []Effect
	notify  chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Emit(_ context.Context, e Effect) error {
	if r == nil {
		return errors.New("effects: nil recorder")
	}
	r.mu.Lock()
	r.effects = append(r.effects, e)
	r.mu.Unlock()
	if r.notify != nil {
		select {
		case r.notify <- struct{}{}:
		default:
		}
	}
	return nil
}

// Effects returns a copy of the recorded effects.
func (r *Recorder) Effects() []Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Effect(nil), r.effects...)
}

// Len returns the number of recorded effects.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.effects)
}

// Reset forgets all recorded effects.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.effects = nil
	r.mu.Unlock()
}

// WaitFor blocks until at least n effects were recorded or ctx is done.
func (r *Recorder) WaitFor(ctx context.Context, n int) error {
	for {
		if r.Len() >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "effects: waiting for %d effects, have %d", n, r.Len())
		case <-r.notify:
		}
	}
}

// OfType filters effects by concrete type.
func OfType[T Effect](effs []Effect) []T {
	var out []T
	for _, e := range effs {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
