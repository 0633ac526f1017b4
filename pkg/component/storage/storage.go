// Package storage defines the common contract of backend clients and a registry that
// health-checks and closes them together.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClientNotFound is returned when no client is registered under a name.
	ErrClientNotFound = errors.New("storage client not found")
	// ErrClientAlreadyExists is returned when a name is registered twice.
	ErrClientAlreadyExists = errors.New("storage client already registered")
)

// Client is implemented by every backend client.
type Client interface {
	// Name returns the backend type, e.g. "postgres" or "milvus".
	Name() string
	// Ping verifies connectivity.
	Ping(ctx context.Context) error
	// Close releases the connection.
	Close() error
}

// HealthStatus is the result of one health probe.
type HealthStatus struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}
