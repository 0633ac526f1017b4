// Package mysql opens the MySQL metadata database.
package mysql

import (
	"context"
	"fmt"

	mysqldriver "gorm.io/driver/mysql"

	"github.com/kart-io/docqa/pkg/component/gormdb"
	options "github.com/kart-io/docqa/pkg/options/mysql"
)

// New connects to MySQL.
func New(ctx context.Context, opts *options.Options) (*gormdb.Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("mysql options cannot be nil")
	}

	return gormdb.Open(ctx, "mysql", mysqldriver.Open(opts.DSN()), gormdb.PoolConfig{
		MaxIdleConnections:    opts.MaxIdleConnections,
		MaxOpenConnections:    opts.MaxOpenConnections,
		MaxConnectionLifeTime: opts.MaxConnectionLifeTime,
	}, opts.LogLevel)
}
