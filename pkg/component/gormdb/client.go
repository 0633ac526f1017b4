// Package gormdb holds the driver-independent part of the relational clients.
package gormdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/docqa/pkg/component/storage"
)

// PoolConfig configures database/sql connection pooling.
type PoolConfig struct {
	MaxIdleConnections    int
	MaxOpenConnections    int
	MaxConnectionLifeTime time.Duration
}

// Client wraps gorm.DB and implements storage.Client.
type Client struct {
	name string
	db   *gorm.DB
}

var _ storage.Client = (*Client)(nil)

// Open connects through dialector, applies the pool settings and pings the database.
func Open(ctx context.Context, name string, dialector gorm.Dialector, pool PoolConfig, logLevel int) (*Client, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(logLevel, 200*time.Millisecond),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if pool.MaxIdleConnections > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConnections)
	}
	if pool.MaxOpenConnections > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConnections)
	}
	if pool.MaxConnectionLifeTime > 0 {
		sqlDB.SetConnMaxLifetime(pool.MaxConnectionLifeTime)
	}

	c := &Client{name: name, db: db}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// DB returns the underlying gorm.DB instance.
func (c *Client) DB() *gorm.DB {
	return c.db
}

// SQLDB returns the underlying sql.DB instance.
func (c *Client) SQLDB() (*sql.DB, error) {
	return c.db.DB()
}

// Name returns the driver name.
func (c *Client) Name() string {
	return c.name
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return fmt.Errorf("%s ping failed: %w", c.name, err)
	}
	return nil
}

// Close closes the connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Stats returns connection pool statistics.
func (c *Client) Stats() (sql.DBStats, error) {
	sqlDB, err := c.db.DB()
	if err != nil {
		return sql.DBStats{}, err
	}
	return sqlDB.Stats(), nil
}
