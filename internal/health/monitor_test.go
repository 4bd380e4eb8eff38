package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeChecker struct {
	name    string
	healthy atomic.Bool
}

func newFake(name string, healthy bool) *fakeChecker {
	f := &fakeChecker{name: name}
	f.healthy.Store(healthy)
	return f
}

func (f *fakeChecker) Name() string                               { return f.name }
func (f *fakeChecker) IsHealthy() bool                            { return f.healthy.Load() }
func (f *fakeChecker) Start(ctx context.Context, _ time.Duration) {}

type fakePinger struct{ fail atomic.Bool }

func (p *fakePinger) HealthPing(ctx context.Context) error {
	if p.fail.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestMonitor_StoreDownTakesServiceDown(t *testing.T) {
	store := newFake(ComponentStore, true)
	relay := newFake(ComponentRelay, true)
	m := NewMonitor(zerolog.Nop(), store).Optional(relay)
	assert.False(t, m.IsHealthy(), "down until first evaluation")

	m.Evaluate()
	assert.True(t, m.IsHealthy())
	assert.False(t, m.Degraded())
	assert.Empty(t, m.Unhealthy())

	store.healthy.Store(false)
	m.Evaluate()
	assert.False(t, m.IsHealthy())
	assert.False(t, m.Degraded())
	assert.Equal(t, []string{ComponentStore}, m.Unhealthy())
	assert.Equal(t, map[string]bool{ComponentStore: false, ComponentRelay: true}, m.Components())
}

func TestMonitor_RelayDownOnlyDegrades(t *testing.T) {
	store := newFake(ComponentStore, true)
	relay := newFake(ComponentRelay, false)
	m := NewMonitor(zerolog.Nop(), store).Optional(relay)

	m.Evaluate()
	assert.True(t, m.IsHealthy())
	assert.True(t, m.Degraded())
	assert.Equal(t, []string{ComponentRelay}, m.Unhealthy())

	relay.healthy.Store(true)
	m.Evaluate()
	assert.False(t, m.Degraded())
}

func TestMonitor_StartFollowsComponents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newFake(ComponentStore, true)
	m := NewMonitor(zerolog.Nop(), store)
	go m.Start(ctx, 10*time.Millisecond)

	assert.Eventually(t, m.IsHealthy, time.Second, 5*time.Millisecond)
	store.healthy.Store(false)
	assert.Eventually(t, func() bool { return !m.IsHealthy() }, time.Second, 5*time.Millisecond)
}

func TestPingChecker_Probe(t *testing.T) {
	p := &fakePinger{}
	pc := NewPingChecker(ComponentStore, p, zerolog.Nop(), 50*time.Millisecond)
	assert.False(t, pc.IsHealthy(), "checker starts unhealthy")

	assert.True(t, pc.Probe(context.Background()))
	assert.True(t, pc.IsHealthy())

	p.fail.Store(true)
	assert.False(t, pc.Probe(context.Background()))
	assert.False(t, pc.IsHealthy())
}
