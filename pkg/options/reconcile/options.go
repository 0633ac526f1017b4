// Package reconcile provides options for the orphan vector reconciliation worker.
package reconcile

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Queue backends.
const (
	QueueDatabase = "database"
	QueueRedis    = "redis"
)

// Options 孤儿向量清理配置。
type Options struct {
	// Enabled 是否周期性清理。关闭后仍可通过管理接口手动触发。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	Interval time.Duration `json:"interval" mapstructure:"interval"`

	// BatchSize 每轮最多处理的条目数。
	BatchSize int `json:"batch-size" mapstructure:"batch-size"`

	// MaxAttempts 单个条目的最大尝试次数，达到后移出队列并记录错误日志。0 表示不限制。
	MaxAttempts int `json:"max-attempts" mapstructure:"max-attempts"`

	// Queue 队列后端：database 或 redis。
	Queue string `json:"queue" mapstructure:"queue"`

	// RedisKey redis 队列使用的列表键。
	RedisKey string `json:"redis-key" mapstructure:"redis-key"`
}

// NewOptions creates default reconciliation options.
func NewOptions() *Options {
	return &Options{
		Enabled:     true,
		Interval:    time.Minute,
		BatchSize:   100,
		MaxAttempts: 10,
		Queue:       QueueDatabase,
		RedisKey:    "docqa:orphans",
	}
}

// AddFlags adds flags for reconciliation options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "reconcile."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Run the orphan vector sweep periodically.")
	fs.DurationVar(&o.Interval, p+"interval", o.Interval, "Interval between sweeps.")
	fs.IntVar(&o.BatchSize, p+"batch-size", o.BatchSize, "Maximum orphans handled per sweep.")
	fs.IntVar(&o.MaxAttempts, p+"max-attempts", o.MaxAttempts, "Attempts before an orphan is dropped from the queue (0 = unlimited).")
	fs.StringVar(&o.Queue, p+"queue", o.Queue, "Orphan queue backend (database, redis).")
	fs.StringVar(&o.RedisKey, p+"redis-key", o.RedisKey, "List key of the redis orphan queue.")
}

// Validate validates the reconciliation options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Enabled && o.Interval <= 0 {
		errs = append(errs, fmt.Errorf("reconcile.interval must be positive"))
	}
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("reconcile.batch-size must be positive"))
	}
	if o.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("reconcile.max-attempts must not be negative"))
	}
	switch o.Queue {
	case QueueDatabase:
	case QueueRedis:
		if o.RedisKey == "" {
			errs = append(errs, fmt.Errorf("reconcile.redis-key is required for the redis queue"))
		}
	default:
		errs = append(errs, fmt.Errorf("reconcile.queue %q is not supported", o.Queue))
	}
	return errs
}

// Complete fills in defaults.
func (o *Options) Complete() error {
	if o.Queue == "" {
		o.Queue = QueueDatabase
	}
	return nil
}
