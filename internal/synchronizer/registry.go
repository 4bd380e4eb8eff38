package synchronizer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ryosuke1832/remind/internal/events"
	"github.com/ryosuke1832/remind/internal/store"
)

// Registry shares one running mirror per owner between request handlers
// and streams. A mirror stops when its last holder releases it.
type Registry struct {
	store store.Store
	bus   *events.Bus
	log   zerolog.Logger

	mu      sync.Mutex
	mirrors map[string]*entry
}

// entry is visible in the map while its mirror starts; ready closes once
// Start has returned and err holds its result.
type entry struct {
	mirror *Mirror
	refs   int
	ready  chan struct{}
	err    error
}

func NewRegistry(st store.Store, bus *events.Bus, log zerolog.Logger) *Registry {
	return &Registry{store: st, bus: bus, log: log, mirrors: make(map[string]*entry)}
}

// Acquire returns the running mirror for ownerID, starting it when needed.
// Callers for the same owner wait for one start; other owners never wait.
// The returned release func must be called exactly once.
func (r *Registry) Acquire(ctx context.Context, ownerID string) (*Mirror, func(), error) {
	r.mu.Lock()
	e, ok := r.mirrors[ownerID]
	if !ok {
		e = &entry{mirror: New(ownerID, r.store, r.bus, r.log), ready: make(chan struct{})}
		r.mirrors[ownerID] = e
	}
	e.refs++
	r.mu.Unlock()

	var once sync.Once
	release := func() { once.Do(func() { r.release(ownerID, e) }) }

	if !ok {
		if e.err = e.mirror.Start(ctx); e.err != nil {
			r.mu.Lock()
			if r.mirrors[ownerID] == e {
				delete(r.mirrors, ownerID)
			}
			r.mu.Unlock()
		}
		close(e.ready)
	}
	select {
	case <-e.ready:
	case <-ctx.Done():
		release()
		return nil, nil, ctx.Err()
	}
	if e.err != nil {
		release()
		return nil, nil, e.err
	}
	return e.mirror, release, nil
}

func (r *Registry) release(ownerID string, e *entry) {
	r.mu.Lock()
	e.refs--
	last := e.refs == 0 && r.mirrors[ownerID] == e
	if last {
		delete(r.mirrors, ownerID)
	}
	r.mu.Unlock()
	if last {
		<-e.ready
		e.mirror.Stop()
	}
}

// Active returns the number of running mirrors.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mirrors)
}

// Close stops every mirror regardless of holders.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.mirrors
	r.mirrors = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range entries {
		<-e.ready
		e.mirror.Stop()
	}
}
