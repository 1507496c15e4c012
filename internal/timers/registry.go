// Package timers tracks the delayed and periodic callbacks owned by one
// in-flight operation so they can be cancelled as a unit. Pipeline code
// never creates a timer outside a registry; draining the registry is what
// guarantees no callback fires after its operation is torn down.
package timers

import (
	"sync"
	"time"
)

// Registry owns every timer created for a single logical operation.
type Registry struct {
	mu      sync.Mutex
	clock   Clock
	handles []Handle
}

// NewRegistry creates an empty registry scheduling against clock.
func NewRegistry(clock Clock) *Registry {
	return &Registry{clock: clock}
}

// AfterFunc schedules a one-shot callback and tracks its handle.
func (r *Registry) AfterFunc(d time.Duration, fn func()) Handle {
	h := r.clock.AfterFunc(d, fn)
	r.track(h)
	return h
}

// Every schedules a periodic callback and tracks its handle.
func (r *Registry) Every(d time.Duration, fn func()) Handle {
	h := r.clock.Every(d, fn)
	r.track(h)
	return h
}

func (r *Registry) track(h Handle) {
	r.mu.Lock()
	r.handles = append(r.handles, h)
	r.mu.Unlock()
}

// CancelAll stops every tracked timer. Idempotent; safe on an empty
// registry. The registry remains usable afterwards.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	handles := r.handles
	r.handles = nil
	r.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

// Len reports the number of currently tracked handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
