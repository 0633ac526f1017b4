// Package postgres opens the PostgreSQL metadata database.
package postgres

import (
	"context"
	"fmt"

	postgresdriver "gorm.io/driver/postgres"

	"github.com/kart-io/docqa/pkg/component/gormdb"
	options "github.com/kart-io/docqa/pkg/options/postgres"
)

// New connects to PostgreSQL.
func New(ctx context.Context, opts *options.Options) (*gormdb.Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("postgres options cannot be nil")
	}

	return gormdb.Open(ctx, "postgres", postgresdriver.Open(opts.DSN()), gormdb.PoolConfig{
		MaxIdleConnections:    opts.MaxIdleConnections,
		MaxOpenConnections:    opts.MaxOpenConnections,
		MaxConnectionLifeTime: opts.MaxConnectionLifeTime,
	}, opts.LogLevel)
}
