package pool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Manager owns a set of named pools.
type Manager struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{pools: make(map[string]*Pool)}
}

// NewDefaultManager creates a manager with the health check and background pools registered.
func NewDefaultManager() (*Manager, error) {
	m := NewManager()
	for typ, cfg := range map[Type]*Config{
		HealthCheckPool: HealthCheckPoolConfig(),
		BackgroundPool:  BackgroundPoolConfig(),
	} {
		if err := m.Register(string(typ), cfg); err != nil {
			_ = m.ReleaseAll(0)
			return nil, err
		}
	}
	return m, nil
}

// Register creates and registers a pool.
func (m *Manager) Register(name string, config *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pools[name]; ok {
		return fmt.Errorf("%w: %s", ErrPoolAlreadyExists, name)
	}
	p, err := NewPool(name, config)
	if err != nil {
		return err
	}
	m.pools[name] = p
	return nil
}

// Get returns the pool registered under name.
func (m *Manager) Get(name string) (*Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, name)
	}
	return p, nil
}

// GetByType returns a standard pool.
func (m *Manager) GetByType(typ Type) (*Pool, error) {
	return m.Get(string(typ))
}

// Stats returns statistics for all pools, sorted by name.
func (m *Manager) Stats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Stats, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ReleaseAll releases every pool and unregisters it.
func (m *Manager) ReleaseAll(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, p := range m.pools {
		if err := p.Release(timeout); err != nil {
			errs = append(errs, fmt.Errorf("release pool %s: %w", name, err))
		}
		delete(m.pools, name)
	}
	return utilerrors.NewAggregate(errs)
}
