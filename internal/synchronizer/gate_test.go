package synchronizer

import (
	"context"
	"sync"

	"github.com/ryosuke1832/remind/internal/store"
)

// gatedStore parks the next avatar query for one owner until released.
type gatedStore struct {
	store.Store
	avatars *gatedAvatars
}

func newGatedStore(inner store.Store) *gatedStore {
	return &gatedStore{Store: inner, avatars: &gatedAvatars{Avatars: inner.Avatars()}}
}

func (g *gatedStore) Avatars() store.Avatars { return g.avatars }

// hold makes the next Query for ownerID read, signal entered, then wait
// until the returned func is called.
func (g *gatedStore) hold(ownerID string) (entered <-chan struct{}, release func()) {
	g.avatars.mu.Lock()
	defer g.avatars.mu.Unlock()
	in := make(chan struct{})
	out := make(chan struct{})
	g.avatars.owner, g.avatars.entered, g.avatars.gate = ownerID, in, out
	var once sync.Once
	return in, func() { once.Do(func() { close(out) }) }
}

type gatedAvatars struct {
	store.Avatars

	mu      sync.Mutex
	owner   string
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedAvatars) Query(ctx context.Context, ownerID string) ([]store.Document, error) {
	docs, err := g.Avatars.Query(ctx, ownerID)
	g.mu.Lock()
	var entered, gate chan struct{}
	if g.gate != nil && g.owner == ownerID {
		entered, gate = g.entered, g.gate
		g.entered, g.gate = nil, nil
	}
	g.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}
	return docs, err
}
