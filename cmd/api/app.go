package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/contentrank/internal/analytics"
	"github.com/onnwee/contentrank/internal/api"
	"github.com/onnwee/contentrank/internal/auth"
	"github.com/onnwee/contentrank/internal/cache"
	"github.com/onnwee/contentrank/internal/config"
	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/db"
	"github.com/onnwee/contentrank/internal/enrich"
	"github.com/onnwee/contentrank/internal/health"
	"github.com/onnwee/contentrank/internal/jobs"
	"github.com/onnwee/contentrank/internal/middleware"
	"github.com/onnwee/contentrank/internal/ranking"
	"github.com/onnwee/contentrank/internal/search"
	"github.com/onnwee/contentrank/internal/spam"
	"github.com/onnwee/contentrank/internal/tracing"
	"github.com/onnwee/contentrank/internal/trending"
)

const (
	serviceName    = "contentrank"
	serviceVersion = "0.3.0"

	rateLimitCleanupInterval = time.Minute
)

// app is the assembled server: its handler plus everything that must be
// started before serving and stopped after.
type app struct {
	handler http.Handler
	logger  *slog.Logger

	ranking   *ranking.Store
	warmer    *trending.Warmer
	watcher   *ranking.Watcher                   // nil when hot reload is unavailable
	analytics *analytics.Logger                  // nil when disabled
	limiter   *middleware.InMemoryRateLimitStore // nil with Redis

	// closers release connections in reverse order of acquisition.
	closers []func(context.Context) error
}

// options carry what main decides outside the config file.
type options struct {
	registry *prometheus.Registry
	seedPath string
}

// newApp builds every dependency from cfg. On error the resources acquired
// so far are released.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts options) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.TracingEndpoint,
		SamplingRate:   cfg.TracingSamplingRate,
		Insecure:       cfg.TracingInsecure,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, provider.Shutdown)

	httpMetrics := middleware.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	cacheMetrics := cache.NewMetrics()
	analyticsMetrics := analytics.NewMetrics()
	enrichMetrics := enrich.NewMetrics()
	var collectors []prometheus.Collector
	collectors = append(collectors, httpMetrics.Collectors()...)
	collectors = append(collectors, jobMetrics.Collectors()...)
	collectors = append(collectors, cacheMetrics.Collectors()...)
	collectors = append(collectors, analyticsMetrics.Collectors()...)
	collectors = append(collectors, enrichMetrics.Collectors()...)
	for _, c := range collectors {
		if err := opts.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	a.ranking = loadRanking(ctx, cfg, logger)
	a.watcher = newWatcher(a.ranking, cfg, logger, jobMetrics)

	var checkers []api.NamedChecker

	var pool *sql.DB
	var repo content.Repository
	if cfg.DatabaseURL != "" {
		pool, err = db.Open(ctx, db.Options{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return pool.Close() })
		checkers = append(checkers, api.NamedChecker{Name: "database", Checker: health.NewDBChecker(pool)})
		repo = content.NewRetryingRepository(content.NewPostgresRepository(pool), logger)
		logger.Info("using postgres content store")
	} else {
		mem := content.NewInMemoryRepository()
		if opts.seedPath != "" {
			n, err := loadSeed(opts.seedPath, mem)
			if err != nil {
				return nil, err
			}
			logger.Info("seeded in-memory content store", "path", opts.seedPath, "items", n)
		}
		repo = mem
		logger.Warn("DATABASE_URL not set, using in-memory content store")
	}

	var cacheStore cache.Store = cache.NewMemoryStore()
	var limitStore middleware.RateLimitStore
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		client := redis.NewClient(redisOpts)
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		checkers = append(checkers, api.NamedChecker{Name: "redis", Checker: health.NewRedisChecker(client)})
		cacheStore = cache.NewRedisStore(client)
		redisLimits := middleware.NewRedisRateLimitStore(client)
		redisLimits.SetMetrics(httpMetrics)
		limitStore = redisLimits
	} else {
		a.limiter = middleware.NewInMemoryRateLimitStore()
		limitStore = a.limiter
	}

	if cfg.AnalyticsEnabled {
		if pool != nil {
			a.analytics = analytics.NewLogger(analytics.NewPostgresSink(pool), analytics.LoggerConfig{
				FlushInterval: cfg.AnalyticsFlushInterval,
				Logger:        logger,
				Metrics:       analyticsMetrics,
				JobMetrics:    jobMetrics,
			})
		} else {
			logger.Info("analytics disabled: no database configured")
		}
	}

	var analyzer enrich.Analyzer = enrich.NoopAnalyzer{}
	if cfg.EnrichmentURL != "" {
		httpAnalyzer, err := enrich.NewHTTPAnalyzer(enrich.HTTPConfig{
			Endpoint: cfg.EnrichmentURL,
			APIKey:   cfg.EnrichmentAPIKey,
			Timeout:  cfg.EnrichmentTimeout,
			Logger:   logger,
			Metrics:  enrichMetrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create enrichment client: %w", err)
		}
		analyzer = httpAnalyzer
	}

	trendingSvc := trending.NewService(trending.Config{
		Ranking:    a.ranking,
		Repository: repo,
		Cache: cache.New[trending.Response](cacheStore, cache.Options{
			Name:    "trending",
			TTL:     cfg.TrendingCacheTTL,
			Logger:  logger,
			Metrics: cacheMetrics,
		}),
		Analytics: a.analytics,
		Logger:    logger,
	})
	searchSvc := search.NewService(search.Config{
		Ranking:    a.ranking,
		Repository: repo,
		Analytics:  a.analytics,
		Logger:     logger,
	})
	spamSvc := spam.NewService(spam.Config{
		Ranking:    a.ranking,
		Repository: repo,
		Analyzer:   analyzer,
		Analytics:  a.analytics,
		Logger:     logger,
	})
	a.warmer = trending.NewWarmer(trending.WarmerConfig{
		Interval:   cfg.TrendingWarmInterval,
		Logger:     logger,
		JobMetrics: jobMetrics,
	}, trendingSvc)

	var verifier middleware.TokenVerifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewVerifier(auth.VerifierConfig{
			Secret:         cfg.JWTSecret,
			PreviousSecret: cfg.JWTPreviousSecret,
			Issuer:         cfg.JWTIssuer,
		})
	}

	origins := middleware.NewOriginPolicy(cfg.CORSAllowedOrigins)
	a.handler = newRouter(routerDeps{
		logger:   logger,
		metrics:  httpMetrics,
		registry: opts.registry,
		limits:   limitStore,
		verifier: verifier,
		cors:     middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins, MaxAge: 600},
		trending: api.NewTrendingHandlers(api.TrendingHandlersConfig{
			Service:        trendingSvc,
			Logger:         logger,
			Metrics:        httpMetrics,
			StreamInterval: cfg.StreamInterval,
			Origins:        origins,
		}),
		search: api.NewSearchHandlers(searchSvc, logger),
		spam:   api.NewSpamHandlers(spamSvc, logger),
		health: api.NewHealthHandlers(api.HealthHandlersConfig{
			Checkers:    checkers,
			Calibration: func() string { return a.ranking.Current().Version },
		}),
	})
	return a, nil
}

// loadRanking builds the initial calibration. Any source that fails leaves
// the defaults in place so the service still starts.
func loadRanking(ctx context.Context, cfg *config.Config, logger *slog.Logger) *ranking.Store {
	lexicon, err := ranking.LoadLexicon(cfg.LexiconPath)
	if err != nil {
		logger.Warn("using default lexicon", "path", cfg.LexiconPath, "error", err)
	}

	var (
		weights *ranking.Weights
		version string
	)
	if cfg.CalibrationBucket != "" {
		src, srcErr := ranking.NewObjectSource(ranking.ObjectSourceConfig{
			BucketName:      cfg.CalibrationBucket,
			Key:             cfg.CalibrationKey,
			AccessKeyID:     cfg.CalibrationAccessKey,
			SecretAccessKey: cfg.CalibrationSecretKey,
			Endpoint:        cfg.CalibrationEndpoint,
		})
		if srcErr != nil {
			err = srcErr
			weights, version = ranking.DefaultWeights(), ranking.DefaultVersion
		} else {
			weights, version, err = src.Load(ctx)
		}
	} else {
		weights, version, err = ranking.LoadCalibration(cfg.CalibrationPath)
	}
	if err != nil {
		logger.Warn("using default ranking weights", "error", err)
	}
	logger.Info("ranking calibration loaded", "version", version)
	return ranking.NewStore(version, weights, lexicon)
}

// newWatcher hot-reloads the local files. Calibration from a bucket is only
// read at startup.
func newWatcher(store *ranking.Store, cfg *config.Config, logger *slog.Logger, jobMetrics *jobs.Metrics) *ranking.Watcher {
	calibrationPath := cfg.CalibrationPath
	if cfg.CalibrationBucket != "" {
		calibrationPath = ""
	}
	w, err := ranking.NewWatcher(store, ranking.WatcherOptions{
		CalibrationPath: calibrationPath,
		LexiconPath:     cfg.LexiconPath,
		Logger:          logger,
		OnReload: func(_ string, elapsed time.Duration, err error) {
			if err != nil {
				jobMetrics.Fail(jobs.JobTypeCalibrationReload, "load")
			}
			jobMetrics.Record(jobs.JobTypeCalibrationReload, elapsed, err)
		},
	})
	if err != nil {
		logger.Warn("ranking hot reload disabled", "error", err)
		return nil
	}
	return w
}

// start launches the background jobs.
func (a *app) start(ctx context.Context) {
	if a.watcher != nil {
		a.watcher.Start()
	}
	if a.analytics != nil {
		a.analytics.Start()
	}
	a.warmer.Start(ctx)
	if a.limiter != nil {
		go func() {
			ticker := time.NewTicker(rateLimitCleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					a.limiter.Cleanup()
				}
			}
		}()
	}
}

// close stops background jobs, flushes analytics and releases connections.
func (a *app) close(ctx context.Context) error {
	if a.warmer != nil {
		a.warmer.Stop()
	}
	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}
	if a.analytics != nil {
		a.analytics.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// routerDeps are the pieces newRouter assembles.
type routerDeps struct {
	logger   *slog.Logger
	metrics  *middleware.Metrics
	registry *prometheus.Registry
	limits   middleware.RateLimitStore
	verifier middleware.TokenVerifier // nil: every request is anonymous
	cors     middleware.CORSConfig

	trending *api.TrendingHandlers
	search   *api.SearchHandlers
	spam     *api.SpamHandlers
	health   *api.HealthHandlers
}

// newRouter registers the routes and wraps them, outermost first, in
// request ID, tracing, CORS, auth, logging, metrics and the global limit.
// Search and spam checks carry their own tighter limits.
func newRouter(d routerDeps) http.Handler {
	keyFunc := middleware.SubjectKeyFunc()
	searchLimit := middleware.RateLimiter(d.limits, middleware.DefaultSearchLimit(), keyFunc, "search", d.metrics)
	spamLimit := middleware.RateLimiter(d.limits, middleware.DefaultSpamCheckLimit(), keyFunc, "spam_check", d.metrics)

	mux := http.NewServeMux()
	mux.HandleFunc("/trending", d.trending.Trending)
	mux.HandleFunc("/trending/stream", d.trending.Stream)
	mux.Handle("/search", searchLimit(http.HandlerFunc(d.search.Search)))
	mux.Handle("/spam-check", spamLimit(http.HandlerFunc(d.spam.Check)))
	mux.Handle("/spam-check/batch", spamLimit(http.HandlerFunc(d.spam.CheckBatch)))
	mux.HandleFunc("/health", d.health.Health)
	mux.HandleFunc("/ready", d.health.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{Registry: d.registry}))
	mux.HandleFunc("/", api.NotFound)

	var h http.Handler = mux
	h = middleware.RateLimiter(d.limits, middleware.DefaultGlobalLimit(), keyFunc, "global", d.metrics)(h)
	h = middleware.HTTPMetrics(d.metrics)(h)
	h = middleware.Logging(d.logger)(h)
	h = middleware.OptionalAuth(d.verifier, d.logger)(h)
	h = middleware.CORS(d.cors)(h)
	h = middleware.Tracing(serviceName)(h)
	return middleware.RequestID(h)
}
