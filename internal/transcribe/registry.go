package transcribe

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chaz8081/gostt-stream/internal/event"
	"github.com/chaz8081/gostt-stream/internal/store"
)

// runHandle is everything the segment callback needs for one run. It is
// owned by Pipeline.Run and lent to the callback by run id.
type runHandle struct {
	id      string
	ctx     context.Context
	store   *store.Store
	emitter event.Emitter
	log     *slog.Logger

	mu     sync.Mutex
	stored int
	failed int
}

// registry maps run ids to live handles. The engine callback only ever sees
// the id string, never the handle itself.
type registry struct {
	mu      sync.Mutex
	handles map[string]*runHandle
}

func newRegistry() *registry {
	return &registry{handles: make(map[string]*runHandle)}
}

func (r *registry) register(h *runHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handles[h.id]; dup {
		panic("transcribe: run id registered twice: " + h.id)
	}
	r.handles[h.id] = h
}

// borrow returns the handle for id without transferring ownership.
func (r *registry) borrow(id string) (*runHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// release drops the handle for id. It reports false when the handle was
// already released.
func (r *registry) release(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[id]; !ok {
		return false
	}
	delete(r.handles, id)
	return true
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (h *runHandle) kept() {
	h.mu.Lock()
	h.stored++
	h.mu.Unlock()
}

func (h *runHandle) dropped() {
	h.mu.Lock()
	h.failed++
	h.mu.Unlock()
}

func (h *runHandle) counts() (stored, failed int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stored, h.failed
}
