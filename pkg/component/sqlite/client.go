// Package sqlite opens the embedded SQLite metadata database.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"

	"github.com/kart-io/docqa/pkg/component/gormdb"
	options "github.com/kart-io/docqa/pkg/options/sqlite"
)

// New opens (and creates if missing) the SQLite database.
func New(ctx context.Context, opts *options.Options) (*gormdb.Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("sqlite options cannot be nil")
	}

	if opts.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	// SQLite 只允许单写者
	return gormdb.Open(ctx, "sqlite", sqlite.Open(opts.DSN()), gormdb.PoolConfig{
		MaxOpenConnections: 1,
	}, opts.LogLevel)
}
