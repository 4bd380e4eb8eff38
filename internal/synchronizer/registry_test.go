package synchronizer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SharesMirrorPerOwner(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry(f.store, f.bus, zerolog.Nop())
	defer r.Close()
	ctx := context.Background()

	m1, release1, err := r.Acquire(ctx, "u1")
	require.NoError(t, err)
	m2, release2, err := r.Acquire(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, m1, m2)

	other, releaseOther, err := r.Acquire(ctx, "u2")
	require.NoError(t, err)
	assert.NotSame(t, m1, other)
	assert.Equal(t, 2, r.Active())

	release1()
	release1()
	assert.Equal(t, 2, r.Active())
	release2()
	assert.Equal(t, 1, r.Active())
	releaseOther()
	assert.Equal(t, 0, r.Active())
	assert.Equal(t, 0, f.bus.Subscribers())

	m3, release3, err := r.Acquire(ctx, "u1")
	require.NoError(t, err)
	defer release3()
	assert.NotSame(t, m1, m3)
}

func TestRegistry_StartDoesNotBlockOtherOwners(t *testing.T) {
	f := newFixture(t)
	gs := newGatedStore(f.store)
	r := NewRegistry(gs, f.bus, zerolog.Nop())
	defer r.Close()
	ctx := context.Background()

	entered, release := gs.hold("u2")
	defer release()
	type result struct {
		m   *Mirror
		rel func()
		err error
	}
	slow := make(chan result, 2)
	acquire := func() {
		m, rel, err := r.Acquire(ctx, "u2")
		slow <- result{m, rel, err}
	}
	go acquire()
	<-entered
	go acquire()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, rel, err := r.Acquire(ctx, "u1")
		assert.NoError(t, err)
		rel()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("acquire for u1 waited on u2's start")
	}

	release()
	a, b := <-slow, <-slow
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Same(t, a.m, b.m)
	assert.Equal(t, 1, r.Active())
	a.rel()
	b.rel()
	assert.Equal(t, 0, r.Active())
}

func TestRegistry_CancelledWaiterLeavesStartRunning(t *testing.T) {
	f := newFixture(t)
	gs := newGatedStore(f.store)
	r := NewRegistry(gs, f.bus, zerolog.Nop())
	defer r.Close()

	entered, release := gs.hold("u1")
	defer release()
	started := make(chan func(), 1)
	go func() {
		_, rel, err := r.Acquire(context.Background(), "u1")
		assert.NoError(t, err)
		started <- rel
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := r.Acquire(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)

	release()
	rel := <-started
	assert.Equal(t, 1, r.Active())
	rel()
	assert.Equal(t, 0, r.Active())
}
