// Package registry maps chat effects to the SEM frames sent to chat clients.
// Encoders are keyed by effect type name; each type has at most one encoder.
package registry

import (
	"sort"
	"sync"

	"github.com/go-go-golems/coachchat/pkg/effects"
)

// Encoder turns one effect into zero or more SEM frames.
type Encoder func(e effects.Effect) ([][]byte, error)

var (
	mu       sync.RWMutex
	encoders = map[effects.Type]Encoder{}
)

// Register installs fn as the encoder for effects of type T, replacing any
// previous encoder for that effect type.
func Register[T effects.Effect](fn func(T) ([][]byte, error)) {
	var zero T
	name := zero.EffectType()

	mu.Lock()
	defer mu.Unlock()
	encoders[name] = func(e effects.Effect) ([][]byte, error) {
		v, ok := e.(T)
		if !ok {
			return nil, nil
		}
		return fn(v)
	}
}

// Handle encodes e. found is false when no encoder is registered for the
// effect's type.
func Handle(e effects.Effect) (frames [][]byte, found bool, err error) {
	if e == nil {
		return nil, false, nil
	}
	mu.RLock()
	enc, ok := encoders[e.EffectType()]
	mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	frames, err = enc(e)
	return frames, true, err
}

// Types lists the effect types that have an encoder, sorted.
func Types() []effects.Type {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]effects.Type, 0, len(encoders))
	for t := range encoders {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clear drops every encoder.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	encoders = map[effects.Type]Encoder{}
}
