// Package options contains flags and options for initializing the docqa server.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/docqa/internal/docqa"
	"github.com/kart-io/docqa/pkg/infra/app/cliflag"
	cacheopts "github.com/kart-io/docqa/pkg/options/cache"
	dbopts "github.com/kart-io/docqa/pkg/options/database"
	llmopts "github.com/kart-io/docqa/pkg/options/llm"
	logopts "github.com/kart-io/docqa/pkg/options/logger"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
	mysqlopts "github.com/kart-io/docqa/pkg/options/mysql"
	pgopts "github.com/kart-io/docqa/pkg/options/postgres"
	ragopts "github.com/kart-io/docqa/pkg/options/rag"
	reconcileopts "github.com/kart-io/docqa/pkg/options/reconcile"
	redisopts "github.com/kart-io/docqa/pkg/options/redis"
	resilienceopts "github.com/kart-io/docqa/pkg/options/resilience"
	serveropts "github.com/kart-io/docqa/pkg/options/server"
	sqliteopts "github.com/kart-io/docqa/pkg/options/sqlite"
	tracingopts "github.com/kart-io/docqa/pkg/options/tracing"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	ServerOptions *serveropts.Options `json:"server" mapstructure:"server"`

	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// DatabaseOptions selects which of the relational groups below is used.
	DatabaseOptions *dbopts.Options     `json:"database" mapstructure:"database"`
	PostgresOptions *pgopts.Options     `json:"postgres" mapstructure:"postgres"`
	MySQLOptions    *mysqlopts.Options  `json:"mysql" mapstructure:"mysql"`
	SQLiteOptions   *sqliteopts.Options `json:"sqlite" mapstructure:"sqlite"`

	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`
	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	EmbeddingOptions  *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`
	ChatOptions       *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`
	ResilienceOptions *resilienceopts.Options  `json:"resilience" mapstructure:"resilience"`

	RAGOptions       *ragopts.Options       `json:"rag" mapstructure:"rag"`
	ReconcileOptions *reconcileopts.Options `json:"reconcile" mapstructure:"reconcile"`
	TracingOptions   *tracingopts.Options   `json:"tracing" mapstructure:"tracing"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		ServerOptions:     serveropts.NewOptions(),
		LogOptions:        logopts.NewOptions(),
		MilvusOptions:     milvusopts.NewOptions(),
		DatabaseOptions:   dbopts.NewOptions(),
		PostgresOptions:   pgopts.NewOptions(),
		MySQLOptions:      mysqlopts.NewOptions(),
		SQLiteOptions:     sqliteopts.NewOptions(),
		RedisOptions:      redisopts.NewOptions(),
		CacheOptions:      cacheopts.NewOptions(),
		EmbeddingOptions:  llmopts.NewEmbeddingOptions(),
		ChatOptions:       llmopts.NewChatOptions(),
		ResilienceOptions: resilienceopts.NewOptions(),
		RAGOptions:        ragopts.NewOptions(),
		ReconcileOptions:  reconcileopts.NewOptions(),
		TracingOptions:    tracingopts.NewOptions(),
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.ServerOptions.AddFlags(fss.FlagSet("server"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.DatabaseOptions.AddFlags(fss.FlagSet("database"))
	o.PostgresOptions.AddFlags(fss.FlagSet("postgres"))
	o.MySQLOptions.AddFlags(fss.FlagSet("mysql"))
	o.SQLiteOptions.AddFlags(fss.FlagSet("sqlite"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"))
	o.ChatOptions.AddFlags(fss.FlagSet("chat"))
	o.ResilienceOptions.AddFlags(fss.FlagSet("resilience"))
	o.RAGOptions.AddFlags(fss.FlagSet("rag"))
	o.ReconcileOptions.AddFlags(fss.FlagSet("reconcile"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))
	return fss
}

type completer interface {
	Complete() error
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	groups := []struct {
		name string
		opts completer
	}{
		{"server", o.ServerOptions},
		{"log", o.LogOptions},
		{"milvus", o.MilvusOptions},
		{"database", o.DatabaseOptions},
		{"postgres", o.PostgresOptions},
		{"mysql", o.MySQLOptions},
		{"sqlite", o.SQLiteOptions},
		{"redis", o.RedisOptions},
		{"cache", o.CacheOptions},
		{"embedding", o.EmbeddingOptions},
		{"chat", o.ChatOptions},
		{"resilience", o.ResilienceOptions},
		{"rag", o.RAGOptions},
		{"reconcile", o.ReconcileOptions},
		{"tracing", o.TracingOptions},
	}
	for _, g := range groups {
		if err := g.opts.Complete(); err != nil {
			return fmt.Errorf("%s: %w", g.name, err)
		}
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
// Only the selected database group is validated.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.ServerOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.MilvusOptions.Validate()...)
	errs = append(errs, o.DatabaseOptions.Validate()...)
	switch o.DatabaseOptions.Driver {
	case dbopts.DriverPostgres:
		errs = append(errs, o.PostgresOptions.Validate()...)
	case dbopts.DriverMySQL:
		errs = append(errs, o.MySQLOptions.Validate()...)
	case dbopts.DriverSQLite:
		errs = append(errs, o.SQLiteOptions.Validate()...)
	}
	errs = append(errs, o.RedisOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.EmbeddingOptions.Validate()...)
	errs = append(errs, o.ChatOptions.Validate()...)
	errs = append(errs, o.ResilienceOptions.Validate()...)
	errs = append(errs, o.RAGOptions.Validate()...)
	errs = append(errs, o.ReconcileOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)

	if o.ReconcileOptions.Queue == reconcileopts.QueueRedis && !o.RedisOptions.Enabled {
		errs = append(errs, fmt.Errorf("reconcile.queue=redis requires redis.enabled"))
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds a docqa.Config based on ServerOptions.
func (o *ServerOptions) Config() (*docqa.Config, error) {
	return &docqa.Config{
		ServerOptions:     o.ServerOptions,
		LogOptions:        o.LogOptions,
		MilvusOptions:     o.MilvusOptions,
		DatabaseOptions:   o.DatabaseOptions,
		PostgresOptions:   o.PostgresOptions,
		MySQLOptions:      o.MySQLOptions,
		SQLiteOptions:     o.SQLiteOptions,
		RedisOptions:      o.RedisOptions,
		CacheOptions:      o.CacheOptions,
		EmbeddingOptions:  o.EmbeddingOptions,
		ChatOptions:       o.ChatOptions,
		ResilienceOptions: o.ResilienceOptions,
		RAGOptions:        o.RAGOptions,
		ReconcileOptions:  o.ReconcileOptions,
		TracingOptions:    o.TracingOptions,
	}, nil
}
