package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Component names reported by the service.
const (
	ComponentStore = "store"
	ComponentRelay = "relay"
)

// HealthChecker is a component-level checker with its own probe loop.
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// Monitor folds component health into the service status. The service is
// up while every required component is healthy. An optional component
// that is down only marks the service degraded: the document store keeps
// serving this instance while mirrors on other instances miss its writes.
type Monitor struct {
	log      zerolog.Logger
	required []HealthChecker
	optional []HealthChecker

	mu        sync.RWMutex
	up        bool
	unhealthy []string
}

// NewMonitor watches the required components. Optional ones are added with Optional.
func NewMonitor(log zerolog.Logger, required ...HealthChecker) *Monitor {
	return &Monitor{log: log, required: required}
}

// Optional adds components whose failure degrades the service without taking it down.
func (m *Monitor) Optional(c ...HealthChecker) *Monitor {
	m.optional = append(m.optional, c...)
	return m
}

// IsHealthy reports whether every required component was healthy at the last evaluation.
func (m *Monitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.up
}

// Degraded reports an up service with at least one optional component down.
func (m *Monitor) Degraded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.up && len(m.unhealthy) > 0
}

// Unhealthy lists the components that failed the last evaluation, sorted.
func (m *Monitor) Unhealthy() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.unhealthy...)
}

// Components reports the current health of every component by name.
func (m *Monitor) Components() map[string]bool {
	out := make(map[string]bool, len(m.required)+len(m.optional))
	for _, c := range m.required {
		out[c.Name()] = c.IsHealthy()
	}
	for _, c := range m.optional {
		out[c.Name()] = c.IsHealthy()
	}
	return out
}

// Evaluate recomputes the service status and logs transitions.
func (m *Monitor) Evaluate() {
	up := true
	var down []string
	for _, c := range m.required {
		if !c.IsHealthy() {
			up = false
			down = append(down, c.Name())
		}
	}
	for _, c := range m.optional {
		if !c.IsHealthy() {
			down = append(down, c.Name())
		}
	}
	sort.Strings(down)

	m.mu.Lock()
	changed := up != m.up || !equal(down, m.unhealthy)
	m.up, m.unhealthy = up, down
	m.mu.Unlock()
	if !changed {
		return
	}
	switch {
	case !up:
		m.log.Error().Strs("unhealthy", down).Msg("remind service down")
	case len(down) > 0:
		m.log.Warn().Strs("unhealthy", down).Msg("remind service degraded")
	default:
		m.log.Info().Msg("remind service up")
	}
}

// Start evaluates at once and then on every interval until ctx is done.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Evaluate()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evaluate()
		}
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
