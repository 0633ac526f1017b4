// Package sqlite provides options for the embedded SQLite metadata store.
package sqlite

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 嵌入式 SQLite 配置，适合单机部署与测试。
type Options struct {
	// Path 数据库文件路径，":memory:" 表示内存库。
	Path string `json:"path" mapstructure:"path"`

	// BusyTimeoutMS 写锁等待时间（毫秒）。
	BusyTimeoutMS int `json:"busy-timeout-ms" mapstructure:"busy-timeout-ms"`

	LogLevel int `json:"log-level" mapstructure:"log-level"`
}

// NewOptions creates default SQLite options.
func NewOptions() *Options {
	return &Options{
		Path:          "_output/docqa.db",
		BusyTimeoutMS: 5000,
		LogLevel:      1,
	}
}

// AddFlags adds flags for SQLite options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "sqlite."
	fs.StringVar(&o.Path, p+"path", o.Path, "SQLite database file, or :memory:.")
	fs.IntVar(&o.BusyTimeoutMS, p+"busy-timeout-ms", o.BusyTimeoutMS, "SQLite busy timeout in milliseconds.")
	fs.IntVar(&o.LogLevel, p+"log-level", o.LogLevel, "GORM log level (1 silent, 2 error, 3 warn, 4 info).")
}

// Validate validates the SQLite options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	if o.Path == "" {
		return []error{fmt.Errorf("sqlite.path is required")}
	}
	return nil
}

// Complete fills in defaults.
func (o *Options) Complete() error {
	if o.BusyTimeoutMS <= 0 {
		o.BusyTimeoutMS = 5000
	}
	return nil
}

// DSN returns the connection string with foreign keys enabled.
func (o *Options) DSN() string {
	sep := "?"
	if strings.Contains(o.Path, "?") {
		sep = "&"
	}
	if o.Path == ":memory:" {
		return fmt.Sprintf("file::memory:?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", o.BusyTimeoutMS)
	}
	return fmt.Sprintf("%s%s_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", o.Path, sep, o.BusyTimeoutMS)
}
