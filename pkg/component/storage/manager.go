package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Submitter runs a task asynchronously. *pool.Pool satisfies it.
type Submitter interface {
	Submit(task func()) error
}

// Manager keeps the storage clients of the process. It is safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]Client
	order   []string
	runner  Submitter
}

// NewManager creates a manager. runner may be nil, in which case probes run on plain goroutines.
func NewManager(runner Submitter) *Manager {
	return &Manager{
		clients: make(map[string]Client),
		runner:  runner,
	}
}

// Register adds a client under a unique name.
func (m *Manager) Register(name string, client Client) error {
	if name == "" || client == nil {
		return fmt.Errorf("storage: name and client are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[name]; exists {
		return fmt.Errorf("%w: %s", ErrClientAlreadyExists, name)
	}
	m.clients[name] = client
	m.order = append(m.order, name)
	return nil
}

// Get retrieves a client by name.
func (m *Manager) Get(name string) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, ok := m.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, name)
	}
	return client, nil
}

// List returns the registered names in registration order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// HealthCheckAll pings every client concurrently and returns the statuses sorted by name.
func (m *Manager) HealthCheckAll(ctx context.Context) []HealthStatus {
	m.mu.RLock()
	clients := make(map[string]Client, len(m.clients))
	for name, c := range m.clients {
		clients[name] = c
	}
	m.mu.RUnlock()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		statuses = make([]HealthStatus, 0, len(clients))
	)
	for name, client := range clients {
		wg.Add(1)
		probe := func() {
			defer wg.Done()
			start := time.Now()
			err := client.Ping(ctx)
			st := HealthStatus{Name: name, Healthy: err == nil, Latency: time.Since(start)}
			if err != nil {
				st.Error = err.Error()
			}
			mu.Lock()
			statuses = append(statuses, st)
			mu.Unlock()
		}

		// 池满或未配置池时退化为直接启动 goroutine
		if m.runner == nil || m.runner.Submit(probe) != nil {
			go probe()
		}
	}
	wg.Wait()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// AllHealthy reports whether every client answered its ping.
func (m *Manager) AllHealthy(ctx context.Context) bool {
	for _, st := range m.HealthCheckAll(ctx) {
		if !st.Healthy {
			return false
		}
	}
	return true
}

// CloseAll closes clients in reverse registration order and unregisters them.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(m.order) - 1; i >= 0; i-- {
		name := m.order[i]
		if err := m.clients[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(m.clients, name)
	}
	m.order = nil
	return utilerrors.NewAggregate(errs)
}
