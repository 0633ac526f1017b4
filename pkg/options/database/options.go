// Package database selects the relational driver behind the metadata store.
package database

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Options 元数据库选择。
type Options struct {
	// Driver 数据库驱动：postgres、mysql 或 sqlite。
	Driver string `json:"driver" mapstructure:"driver"`

	// AutoMigrate 启动时是否自动建表。
	AutoMigrate bool `json:"auto-migrate" mapstructure:"auto-migrate"`
}

// NewOptions creates default database options.
func NewOptions() *Options {
	return &Options{
		Driver:      DriverPostgres,
		AutoMigrate: true,
	}
}

// AddFlags adds flags for database options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "database."
	fs.StringVar(&o.Driver, p+"driver", o.Driver, "Metadata store driver (postgres, mysql, sqlite).")
	fs.BoolVar(&o.AutoMigrate, p+"auto-migrate", o.AutoMigrate, "Create or update tables on startup.")
}

// Validate validates the database options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	switch o.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
		return nil
	default:
		return []error{fmt.Errorf("database.driver %q is not supported", o.Driver)}
	}
}

// Complete completes the database options.
func (o *Options) Complete() error {
	if o.Driver == "" {
		o.Driver = DriverPostgres
	}
	return nil
}
