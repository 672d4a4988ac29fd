package registry

import (
	"context"
	"sync"
)

// AbortRegistry maps conversation ids to cancellation handles. Each running
// conversation registers exactly one handle; registering again for the same
// id cancels and replaces the earlier handle so repeated runs of one
// conversation never leak stale handles.
type AbortRegistry struct {
	mu      sync.Mutex
	entries map[string]*abortEntry
}

type abortEntry struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewAbortRegistry creates an empty abort registry.
func NewAbortRegistry() *AbortRegistry {
	return &AbortRegistry{entries: make(map[string]*abortEntry)}
}

// Register derives a cancelable context from parent and stores its handle
// under id, replacing any previous registration. A displaced handle is
// canceled: the registry can no longer reach that run, so it must not keep
// going unobserved. The returned context is what the conversation run should
// observe.
func (r *AbortRegistry) Register(parent context.Context, id string) context.Context {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[id]; ok {
		old.cancel()
	}
	r.entries[id] = &abortEntry{ctx: ctx, cancel: cancel}
	return ctx
}

// Signal returns the cancellation signal channel for id, or nil when no
// handle is registered.
func (r *AbortRegistry) Signal(id string) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.ctx.Done()
	}
	return nil
}

// Abort signals cancellation for id and removes the entry. It reports
// whether an entry existed; aborting an unknown id is a no-op, not an error.
func (r *AbortRegistry) Abort(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	e.cancel()
	return true
}

// Has reports whether a handle is registered for id.
func (r *AbortRegistry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Unregister removes the handle for id without signaling it. Used when a
// run finishes normally or its session is deleted.
func (r *AbortRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}
