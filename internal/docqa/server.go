// Package docqa assembles the document question-answering service.
package docqa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kart-io/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/router"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/component/gormdb"
	"github.com/kart-io/docqa/pkg/component/milvus"
	"github.com/kart-io/docqa/pkg/component/mysql"
	"github.com/kart-io/docqa/pkg/component/postgres"
	"github.com/kart-io/docqa/pkg/component/redis"
	"github.com/kart-io/docqa/pkg/component/sqlite"
	"github.com/kart-io/docqa/pkg/component/storage"
	"github.com/kart-io/docqa/pkg/infra/app"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/docqa/pkg/llm/deepseek"
	_ "github.com/kart-io/docqa/pkg/llm/ollama"
	_ "github.com/kart-io/docqa/pkg/llm/openai"
	_ "github.com/kart-io/docqa/pkg/llm/siliconflow"
	"github.com/kart-io/docqa/pkg/llm/resilience"
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

// Name is the name of the application.
const Name = "docqa"

// Config contains application-related configurations.
type Config struct {
	ServerOptions     *serveropts.Options
	LogOptions        *logopts.Options
	MilvusOptions     *milvusopts.Options
	DatabaseOptions   *dbopts.Options
	PostgresOptions   *pgopts.Options
	MySQLOptions      *mysqlopts.Options
	SQLiteOptions     *sqliteopts.Options
	RedisOptions      *redisopts.Options
	CacheOptions      *cacheopts.Options
	EmbeddingOptions  *llmopts.ProviderOptions
	ChatOptions       *llmopts.ProviderOptions
	ResilienceOptions *resilienceopts.Options
	RAGOptions        *ragopts.Options
	ReconcileOptions  *reconcileopts.Options
	TracingOptions    *tracingopts.Options
}

// Server represents the docqa server.
type Server struct {
	cfg        *Config
	http       *http.Server
	service    *biz.Service
	storage    *storage.Manager
	pools      *pool.Manager
	tracer     *tracing.Provider
	background *pool.Pool
}

// NewServer initializes every dependency and returns a server ready to run.
// On failure everything opened so far is closed again.
func (cfg *Config) NewServer(ctx context.Context) (_ *Server, err error) {
	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.version", app.GetVersion())
	if err := cfg.LogOptions.Init(Name); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("Starting docqa service...", "version", app.GetVersion())

	s := &Server{cfg: cfg}
	defer func() {
		if err != nil {
			s.release(context.Background())
		}
	}()

	// 2. 追踪
	s.tracer, err = tracing.NewProvider(ctx, cfg.TracingOptions, app.GetVersion())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// 3. 协程池与存储管理器
	s.pools, err = pool.NewDefaultManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pools: %w", err)
	}
	healthPool, err := s.pools.GetByType(pool.HealthCheckPool)
	if err != nil {
		return nil, err
	}
	s.background, err = s.pools.GetByType(pool.BackgroundPool)
	if err != nil {
		return nil, err
	}
	s.storage = storage.NewManager(healthPool)

	// 4. 元数据库
	db, err := cfg.openDatabase(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", cfg.DatabaseOptions.Driver, err)
	}
	if err := s.storage.Register(db.Name(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	metadata := store.NewGormMetadataStore(db.DB())
	if cfg.DatabaseOptions.AutoMigrate {
		if err := metadata.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate metadata schema: %w", err)
		}
	}
	logger.Infow("Metadata store initialized", "driver", cfg.DatabaseOptions.Driver)

	// 5. Milvus
	milvusClient, err := milvus.New(ctx, cfg.MilvusOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	if err := s.storage.Register(milvusClient.Name(), milvusClient); err != nil {
		_ = milvusClient.Close()
		return nil, err
	}
	vectors := store.NewMilvusStore(milvusClient, store.MilvusConfig{
		Collection: cfg.RAGOptions.Collection,
		Dimension:  cfg.RAGOptions.EmbeddingDim,
		NList:      cfg.RAGOptions.NList,
		NProbe:     cfg.RAGOptions.NProbe,
	})
	if err := vectors.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	logger.Infow("Vector store initialized", "collection", cfg.RAGOptions.Collection, "dim", cfg.RAGOptions.EmbeddingDim)

	// 6. Redis（可选）
	var redisClient *goredis.Client
	if cfg.RedisOptions.Enabled {
		rc, err := redis.New(ctx, cfg.RedisOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		if err := s.storage.Register(rc.Name(), rc); err != nil {
			_ = rc.Close()
			return nil, err
		}
		redisClient = rc.Client()
		logger.Infow("Redis initialized", "redis", cfg.RedisOptions.String())
	} else {
		logger.Info("Redis is disabled, answer cache and redis orphan queue are off")
	}

	var orphans store.OrphanQueue
	switch cfg.ReconcileOptions.Queue {
	case reconcileopts.QueueRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("reconcile.queue=redis requires redis.enabled")
		}
		orphans = store.NewRedisOrphanQueue(redisClient, cfg.ReconcileOptions.RedisKey, cfg.RAGOptions.Collection)
	default:
		orphans = store.NewGormOrphanQueue(db.DB(), cfg.RAGOptions.Collection)
	}

	var queryCache *biz.QueryCache
	if redisClient != nil && cfg.CacheOptions.Enabled {
		queryCache = biz.NewQueryCache(redisClient, &biz.QueryCacheConfig{
			Enabled:   true,
			TTL:       cfg.CacheOptions.TTL,
			KeyPrefix: cfg.CacheOptions.KeyPrefix,
		})
	}

	// 7. LLM 供应商
	embedder, chat, err := cfg.newProviders(redisClient)
	if err != nil {
		return nil, err
	}

	// 8. 指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// 9. Biz 层
	s.service = biz.NewService(biz.Dependencies{
		Embedder:   embedder,
		Chat:       chat,
		Vectors:    vectors,
		Metadata:   metadata,
		Orphans:    orphans,
		Cache:      queryCache,
		Background: s.background,
		Metrics:    m,
	}, &biz.ServiceConfig{
		ChunkSize:          cfg.RAGOptions.ChunkSize,
		ChunkOverlap:       cfg.RAGOptions.ChunkOverlap,
		TopK:               cfg.RAGOptions.TopK,
		EmbeddingDim:       cfg.RAGOptions.EmbeddingDim,
		SystemPrompt:       cfg.RAGOptions.SystemPrompt,
		Expansion:          cfg.RAGOptions.Expansion.Enabled,
		ExpansionCount:     cfg.RAGOptions.Expansion.Count,
		ExpansionStrict:    cfg.RAGOptions.Expansion.Strict,
		ExpansionFuse:      cfg.RAGOptions.Expansion.Fuse,
		ReconcileInterval:  cfg.ReconcileOptions.Interval,
		ReconcileBatchSize: cfg.ReconcileOptions.BatchSize,
		ReconcileMaxTries:  cfg.ReconcileOptions.MaxAttempts,
	})
	logger.Infow("docqa service initialized",
		"cache.enabled", queryCache != nil,
		"expansion.enabled", cfg.RAGOptions.Expansion.Enabled,
		"orphan.queue", cfg.ReconcileOptions.Queue,
		"tracing.enabled", s.tracer.Enabled(),
	)

	// 10. HTTP
	h := handler.New(s.service, s.storage, handler.Config{
		ChunkSize:     cfg.RAGOptions.ChunkSize,
		ChunkOverlap:  cfg.RAGOptions.ChunkOverlap,
		QueryTimeout:  cfg.RAGOptions.QueryTimeout,
		IngestTimeout: cfg.RAGOptions.IngestTimeout,
	})
	engine := router.New(h, router.Config{
		Mode:         cfg.ServerOptions.Mode,
		MaxBodyBytes: cfg.ServerOptions.MaxBodyBytes,
		Gatherer:     registry,
	})
	s.http = &http.Server{
		Addr:         cfg.ServerOptions.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.ServerOptions.ReadTimeout,
		WriteTimeout: cfg.ServerOptions.WriteTimeout,
		IdleTimeout:  cfg.ServerOptions.IdleTimeout,
	}

	logger.Info("docqa service is ready")
	return s, nil
}

func (cfg *Config) openDatabase(ctx context.Context) (*gormdb.Client, error) {
	switch cfg.DatabaseOptions.Driver {
	case dbopts.DriverMySQL:
		return mysql.New(ctx, cfg.MySQLOptions)
	case dbopts.DriverSQLite:
		return sqlite.New(ctx, cfg.SQLiteOptions)
	default:
		return postgres.New(ctx, cfg.PostgresOptions)
	}
}

// newProviders builds the embedding and chat providers with the optional
// resilience and embedding cache layers.
func (cfg *Config) newProviders(redisClient *goredis.Client) (llm.EmbeddingProvider, llm.ChatProvider, error) {
	embedder, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	chat, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}

	if cfg.ResilienceOptions.Enabled {
		embedder = resilience.WrapEmbedding(embedder, cfg.ResilienceOptions.RetryConfig(), cfg.ResilienceOptions.CircuitBreakerConfig())
		chat = resilience.WrapChat(chat, cfg.ResilienceOptions.RetryConfig(), cfg.ResilienceOptions.CircuitBreakerConfig())
	}

	// 缓存在重试外层，命中时不占用熔断配额
	if redisClient != nil && cfg.CacheOptions.Embeddings {
		embedder = llm.NewCachedEmbeddingProvider(embedder, redisClient, &llm.EmbeddingCacheConfig{
			TTL:       cfg.CacheOptions.EmbeddingTTL,
			KeyPrefix: fmt.Sprintf("docqa:emb:%s:%s:", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model),
		}, textutil.HashString)
	}

	logger.Infow("LLM providers initialized",
		"embedding.provider", cfg.EmbeddingOptions.Provider,
		"embedding.model", cfg.EmbeddingOptions.Model,
		"chat.provider", cfg.ChatOptions.Provider,
		"chat.model", cfg.ChatOptions.Model,
		"resilience", cfg.ResilienceOptions.Enabled,
		"embedding.cache", redisClient != nil && cfg.CacheOptions.Embeddings,
	)
	return embedder, chat, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.ReconcileOptions.Enabled {
		go s.service.Reconciler().Run(runCtx, s.background)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down docqa service...")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Errorw("HTTP server failed", "error", serveErr.Error())
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ServerOptions.ShutdownTimeout)
	defer shutdownCancel()

	errs := []error{serveErr}
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	errs = append(errs, s.release(shutdownCtx))

	logger.Info("docqa service stopped")
	return utilerrors.NewAggregate(errs)
}

// release stops background work before closing the stores it uses.
func (s *Server) release(ctx context.Context) error {
	var errs []error
	if s.pools != nil {
		timeout := 10 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := s.pools.ReleaseAll(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if s.storage != nil {
		if err := s.storage.CloseAll(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}
