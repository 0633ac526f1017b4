// Package cache provides options for the Redis-backed answer and embedding caches.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 缓存配置，依赖 redis 分组建立的连接。
type Options struct {
	// Enabled 是否缓存查询答案。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL 答案缓存过期时间。
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix 答案缓存键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// Embeddings 是否缓存文本向量。
	Embeddings bool `json:"embeddings" mapstructure:"embeddings"`

	EmbeddingTTL time.Duration `json:"embedding-ttl" mapstructure:"embedding-ttl"`
}

// NewOptions 创建默认缓存配置。
func NewOptions() *Options {
	return &Options{
		Enabled:      true,
		TTL:          time.Hour,
		KeyPrefix:    "docqa:answer:",
		Embeddings:   false,
		EmbeddingTTL: 24 * time.Hour,
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "cache."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Cache query answers in Redis.")
	fs.DurationVar(&o.TTL, p+"ttl", o.TTL, "Answer cache TTL.")
	fs.StringVar(&o.KeyPrefix, p+"key-prefix", o.KeyPrefix, "Answer cache key prefix.")
	fs.BoolVar(&o.Embeddings, p+"embeddings", o.Embeddings, "Cache embedding vectors in Redis.")
	fs.DurationVar(&o.EmbeddingTTL, p+"embedding-ttl", o.EmbeddingTTL, "Embedding cache TTL.")
}

// Validate validates the cache options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Enabled && o.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive"))
	}
	if o.Embeddings && o.EmbeddingTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.embedding-ttl must be positive"))
	}
	return errs
}

// Complete fills in defaults.
func (o *Options) Complete() error {
	if o.KeyPrefix == "" {
		o.KeyPrefix = "docqa:answer:"
	}
	return nil
}
