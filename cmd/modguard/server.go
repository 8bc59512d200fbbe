package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/modguard/api/handlers"
	"github.com/BaSui01/modguard/config"
	"github.com/BaSui01/modguard/internal/cache"
	"github.com/BaSui01/modguard/internal/database"
	"github.com/BaSui01/modguard/internal/metrics"
	"github.com/BaSui01/modguard/internal/migration"
	"github.com/BaSui01/modguard/internal/server"
	"github.com/BaSui01/modguard/internal/store"
	"github.com/BaSui01/modguard/internal/store/mongostore"
	"github.com/BaSui01/modguard/internal/telemetry"
	"github.com/BaSui01/modguard/llm"
	"github.com/BaSui01/modguard/llm/providers/openaicompat"
	"github.com/BaSui01/modguard/moderation"
	"github.com/BaSui01/modguard/rules"
)

// publicPaths 不需要鉴权的路径
var publicPaths = []string{"/", "/health", "/healthz", "/ready", "/version"}

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 持有 serve 命令的全部组件：审核流水线、结果日志、HTTP 与 Metrics 双端口
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *prometheus.Registry
	collector *metrics.Collector
	otel      *telemetry.Providers

	pipeline *moderation.Pipeline
	watcher  *rules.FileWatcher

	cache       *cache.Manager
	pool        *database.PoolManager
	submissions *store.SubmissionStore
	mongo       *mongostore.Sink

	health *handlers.HealthHandler

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer 按配置打开全部后端。任何一步失败都会关闭已打开的资源。
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		health:   handlers.NewHealthHandler(Version, logger),
		otel:     &telemetry.Providers{},
	}
	if err := s.open(ctx); err != nil {
		s.closeBackends(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

func (s *Server) open(ctx context.Context) error {
	cfg, logger := s.cfg, s.logger

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollector("modguard", s.registry, logger)

	if p, err := telemetry.Init(ctx, cfg.Telemetry, logger); err != nil {
		logger.Warn("failed to initialize telemetry, tracing disabled", zap.Error(err))
	} else {
		s.otel = p
	}

	// 1. Redis（规则来源为 redis 时必需）
	var err error
	if cfg.Redis.Enabled {
		s.cache, err = cache.NewManager(ctx, cacheConfig(cfg.Redis), logger)
		if err != nil {
			return err
		}
		s.health.RegisterCheck(handlers.NewCheck("redis", s.cache.Ping))
	}

	// 2. 审核流水线
	model, err := buildModel(cfg.LLM, logger, s.collector)
	if err != nil {
		return err
	}
	s.pipeline, s.watcher, err = buildPipeline(cfg, model, s.cache, s.collector, logger)
	if err != nil {
		return err
	}

	// 3. 结果日志
	if err := s.openDatabase(ctx); err != nil {
		return err
	}
	if cfg.Mongo.Enabled {
		s.mongo, err = mongostore.Connect(ctx, cfg.Mongo, logger)
		if err != nil {
			return err
		}
		s.health.RegisterCheck(handlers.NewCheck("mongo", s.mongo.Ping))
	}
	return nil
}

func (s *Server) openDatabase(ctx context.Context) error {
	dbCfg := s.cfg.Database
	if !dbCfg.Enabled {
		return nil
	}
	pool, err := database.Open(ctx, dbCfg, s.logger, database.WithStatsFunc(func(open, idle int) {
		s.collector.RecordDBConnections(dbCfg.Driver, open, idle)
	}))
	if err != nil {
		return err
	}
	s.pool = pool
	s.submissions = store.NewSubmissionStore(pool.DB(), s.logger)

	if dbCfg.AutoMigrate {
		if err := migrateSchema(ctx, dbCfg, s.submissions); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		s.logger.Info("database schema up to date", zap.String("driver", dbCfg.Driver))
	}
	s.health.RegisterCheck(handlers.NewCheck("database", pool.Ping))
	return nil
}

// migrateSchema sqlite 直接用 gorm 建表（支持 :memory:），其余驱动走版本化迁移
func migrateSchema(ctx context.Context, dbCfg config.DatabaseConfig, sub *store.SubmissionStore) error {
	if dbCfg.Driver == "sqlite" {
		return sub.AutoMigrate(ctx)
	}
	m, err := migration.NewMigratorFromDatabaseConfig(dbCfg)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up(ctx)
}

// resultSinks 当前配置的结果日志
func (s *Server) resultSinks() moderation.Sinks {
	var sinks moderation.Sinks
	if s.submissions != nil {
		sinks = append(sinks, s.submissions)
	}
	if s.mongo != nil {
		sinks = append(sinks, s.mongo)
	}
	return sinks
}

// =============================================================================
// 🌐 路由
// =============================================================================

// Handler 构建带中间件的 API 处理器。ctx 控制限流器的后台清理。
func (s *Server) Handler(ctx context.Context) http.Handler {
	opts := []handlers.SubmitOption{
		handlers.WithMaxUploadBytes(s.cfg.Server.MaxUploadBytes),
		handlers.WithRecordHook(s.collector.RecordSinkWrite),
	}
	if sinks := s.resultSinks(); len(sinks) > 0 {
		opts = append(opts, handlers.WithResultSink(sinks))
	}
	submit := handlers.NewSubmitHandler(s.pipeline, s.logger, opts...)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handlers.HandleRoot)
	mux.HandleFunc("POST /submit", submit.HandleSubmit)
	mux.HandleFunc("GET /health", s.health.HandleHealth)
	mux.HandleFunc("GET /healthz", s.health.HandleHealth)
	mux.HandleFunc("GET /ready", s.health.HandleReady)
	mux.HandleFunc("GET /version", s.health.HandleVersion)

	routes := []string{"/", "/submit", "/health", "/healthz", "/ready", "/version"}
	if s.submissions != nil {
		list := handlers.NewSubmissionsHandler(s.submissions, s.logger)
		mux.HandleFunc("GET /submissions", list.HandleList)
		routes = append(routes, "/submissions")
	}

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		MetricsMiddleware(s.collector, routes),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		Auth(s.cfg.Auth, publicPaths, s.logger),
	)
}

// MetricsHandler 暴露 Prometheus 指标
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	return mux
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Run 启动 HTTP、Metrics 与规则监听，阻塞到 ctx 结束或任一服务出错，然后关闭全部资源
func (s *Server) Run(ctx context.Context) error {
	httpCfg := server.DefaultConfig()
	httpCfg.Name = "api"
	httpCfg.Addr = fmt.Sprintf(":%d", s.cfg.Server.HTTPPort)
	if s.cfg.Server.ReadTimeout > 0 {
		httpCfg.ReadTimeout = s.cfg.Server.ReadTimeout
	}
	if s.cfg.Server.WriteTimeout > 0 {
		httpCfg.WriteTimeout = s.cfg.Server.WriteTimeout
	}
	if s.cfg.Server.ShutdownTimeout > 0 {
		httpCfg.ShutdownTimeout = s.cfg.Server.ShutdownTimeout
	}

	g, gctx := errgroup.WithContext(ctx)

	s.httpManager = server.NewManager(s.Handler(gctx), httpCfg, s.logger)
	g.Go(func() error { return s.httpManager.Run(gctx) })

	if s.cfg.Server.MetricsPort > 0 {
		metricsCfg := server.DefaultConfig()
		metricsCfg.Name = "metrics"
		metricsCfg.Addr = fmt.Sprintf(":%d", s.cfg.Server.MetricsPort)
		metricsCfg.WriteTimeout = 30 * time.Second
		metricsCfg.ShutdownTimeout = httpCfg.ShutdownTimeout
		s.metricsManager = server.NewManager(s.MetricsHandler(), metricsCfg, s.logger)
		g.Go(func() error { return s.metricsManager.Run(gctx) })
	}

	if s.watcher != nil {
		g.Go(func() error {
			s.watcher.Run(gctx)
			return nil
		})
	}

	s.logger.Info("ModGuard started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("telemetry", s.otel.Enabled()),
		zap.Int("result_sinks", len(s.resultSinks())),
	)

	err := g.Wait()
	s.closeBackends(context.WithoutCancel(ctx))
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

// closeBackends 依次关闭数据库、Mongo、Redis 与遥测，错误只记日志
func (s *Server) closeBackends(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("database close error", zap.Error(err))
		}
	}
	if s.mongo != nil {
		if err := s.mongo.Close(ctx); err != nil {
			s.logger.Error("mongo close error", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("redis close error", zap.Error(err))
		}
	}
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}
}

// =============================================================================
// 🧩 组件构建
// =============================================================================

func cacheConfig(rc config.RedisConfig) cache.Config {
	c := cache.DefaultConfig()
	c.Addr = rc.Addr
	c.Password = rc.Password
	c.DB = rc.DB
	if rc.KeyPrefix != "" {
		c.KeyPrefix = rc.KeyPrefix
	}
	if rc.PoolSize > 0 {
		c.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		c.MinIdleConns = rc.MinIdleConns
	}
	return c
}

// buildModel 创建 OpenAI 兼容的对话模型；未配置 API Key 时返回配置错误
func buildModel(lc config.LLMConfig, logger *zap.Logger, collector *metrics.Collector) (*llm.ChatModel, error) {
	provider, err := openaicompat.New(openaicompat.Config{
		ProviderName: lc.Provider,
		APIKey:       lc.APIKey,
		BaseURL:      lc.BaseURL,
		DefaultModel: lc.Model,
		Timeout:      lc.Timeout,
		MaxRetries:   lc.MaxRetries,
	}, logger)
	if err != nil {
		return nil, err
	}

	opts := []llm.ChatModelOption{llm.WithChatModelLogger(logger)}
	if collector != nil {
		opts = append(opts, llm.WithCallObserver(collector.RecordLLMCall))
	}
	return llm.NewChatModel(provider, llm.ChatModelOptions{
		Model:       lc.Model,
		Temperature: float32(lc.Temperature),
		MaxTokens:   lc.MaxTokens,
		Timeout:     lc.Timeout,
	}, opts...)
}

// buildRules 按 rules.source 选择规则来源。file 来源在 WatchInterval > 0 时返回监听器。
func buildRules(rc config.RulesConfig, kv rules.JSONStore, logger *zap.Logger) (rules.Provider, *rules.FileWatcher, error) {
	switch rc.Source {
	case "", "static":
		return rules.NewStaticProvider(nil), nil, nil
	case "file":
		cached := rules.NewCachedProvider(rules.NewFileProvider(rc.Path), rc.CacheTTL)
		var watcher *rules.FileWatcher
		if rc.WatchInterval > 0 {
			watcher = rules.NewFileWatcher(rc.Path, rc.WatchInterval, func(rules.FileOp) {
				cached.Invalidate()
			}, logger)
		}
		return cached, watcher, nil
	case "redis":
		if kv == nil {
			return nil, nil, errors.New("rules source redis requires a redis connection")
		}
		return rules.NewCachedProvider(rules.NewRedisProvider(kv, rc.RedisKey, nil), rc.CacheTTL), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown rules source %q", rc.Source)
	}
}

// buildPipeline 组装审核流水线；collector 为 nil 时不挂指标观察者
func buildPipeline(cfg *config.Config, model moderation.ModelClient, cacheMgr *cache.Manager, collector *metrics.Collector, logger *zap.Logger) (*moderation.Pipeline, *rules.FileWatcher, error) {
	var kv rules.JSONStore
	if cacheMgr != nil {
		kv = cacheMgr
	}
	provider, watcher, err := buildRules(cfg.Rules, kv, logger)
	if err != nil {
		return nil, nil, err
	}

	mode, err := moderation.ParseExplainMode(cfg.Moderation.ExplainMode)
	if err != nil {
		return nil, nil, err
	}
	routing, err := moderation.NewRoutingPolicy(mode, cfg.Moderation.ExplainProbability, nil)
	if err != nil {
		return nil, nil, err
	}

	pc := moderation.Config{
		Model:     model,
		Rules:     provider,
		Routing:   routing,
		Logger:    logger,
		StepLimit: cfg.Moderation.StepLimit,
	}
	if collector != nil {
		pc.NodeObserver = collector
		pc.RunObserver = collector
	}
	p, err := moderation.New(pc)
	if err != nil {
		return nil, nil, err
	}
	return p, watcher, nil
}
