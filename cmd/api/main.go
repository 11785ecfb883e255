// Package main is the entrypoint for the user-match API server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nice2meet/usermatch/internal/cache"
	"github.com/nice2meet/usermatch/internal/config"
	"github.com/nice2meet/usermatch/internal/handler"
	"github.com/nice2meet/usermatch/internal/metrics"
	"github.com/nice2meet/usermatch/internal/middleware"
	"github.com/nice2meet/usermatch/internal/selector"
	"github.com/nice2meet/usermatch/internal/server"
	"github.com/nice2meet/usermatch/internal/service"
	"github.com/nice2meet/usermatch/internal/upstream"
)

const (
	localLimiterPruneInterval = time.Minute
	localLimiterMaxIdle       = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := metrics.NewPrometheus()
	httpClient := upstream.NewHTTPClient()

	poolsClient, err := upstream.NewPoolsClient(upstream.ClientConfig{
		BaseURL:    cfg.PoolsServiceURL,
		Timeout:    cfg.UpstreamTimeout,
		HTTPClient: httpClient,
		Metrics:    recorder,
	})
	if err != nil {
		logger.Error("invalid pools service configuration", "error", err)
		os.Exit(1)
	}
	matchesClient, err := upstream.NewMatchesClient(upstream.ClientConfig{
		BaseURL:    cfg.MatchesServiceURL,
		Timeout:    cfg.UpstreamTimeout,
		HTTPClient: httpClient,
		Metrics:    recorder,
	})
	if err != nil {
		logger.Error("invalid matches service configuration", "error", err)
		os.Exit(1)
	}

	// Redis is optional; without it the rate limit is kept per process.
	var cacheClient *cache.Cache
	var limiter middleware.Limiter
	if cfg.RateLimitEnabled {
		cacheClient, limiter, err = initRateLimiter(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to initialize rate limiter", "error", err)
			os.Exit(1)
		}
	}

	svc := service.NewUserMatchService(poolsClient, matchesClient, service.Options{
		MaxPoolSize:  cfg.MaxPoolSize,
		MaxMatches:   cfg.MaxMatches,
		MatchWorkers: cfg.MatchWorkers,
		Selector:     selector.NewRandom(),
		Metrics:      recorder,
		Logger:       logger,
	})

	redisDep := handler.Dependency{Name: "redis"}
	if cacheClient != nil {
		redisDep.Checker = cacheClient
	}

	r := setupRouter(routerDeps{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		limiter:  limiter,
		health: handler.NewHealthHandler(
			handler.Dependency{Name: "pools", Checker: poolsClient},
			handler.Dependency{Name: "matches", Checker: matchesClient},
			redisDep,
		),
		userMatch: handler.NewUserMatchHandler(svc, logger),
	})

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	srv.OnShutdown("upstream connections", func(ctx context.Context) error {
		httpClient.CloseIdleConnections()
		return nil
	})
	if cacheClient != nil {
		srv.OnShutdown("redis", func(ctx context.Context) error {
			return cacheClient.Close()
		})
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"pools_service", redactURL(cfg.PoolsServiceURL),
		"matches_service", redactURL(cfg.MatchesServiceURL),
		"max_pool_size", cfg.MaxPoolSize,
		"max_matches", cfg.MaxMatches,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", handler.ServiceName)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initRateLimiter returns the Redis-backed limiter when REDIS_URL is set and a
// pruned in-process limiter otherwise. The cache is nil in the second case.
func initRateLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cache.Cache, middleware.Limiter, error) {
	if cfg.RedisURL == "" {
		local, err := middleware.NewLocalLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		if err != nil {
			return nil, nil, err
		}
		local.StartPruning(ctx, localLimiterPruneInterval, localLimiterMaxIdle)
		if cfg.IsProduction() {
			logger.Warn("REDIS_URL not set, rate limits are not shared between replicas")
		}
		logger.Info("rate limiting per process", "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
		return nil, local, nil
	}

	c, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return nil, nil, err
	}
	limiter, err := cache.NewRateLimiter(c, cfg.RateLimitRPS, cfg.RateLimitBurst)
	if err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	logger.Info("connected to Redis", "redis_url", redactURL(cfg.RedisURL))
	return c, limiter, nil
}

type routerDeps struct {
	cfg       *config.Config
	logger    *slog.Logger
	recorder  *metrics.PrometheusRecorder
	limiter   middleware.Limiter
	health    *handler.HealthHandler
	userMatch *handler.UserMatchHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(d routerDeps) *chi.Mux {
	h := handler.New()
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recoverer(d.logger))
	r.Use(d.recorder.InstrumentHandler)
	r.Use(middleware.Security(d.cfg.IsDevelopment()))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   d.cfg.GetCORSAllowedOrigins(),
		AllowCredentials: true,
		MaxAge:           middleware.DefaultCORSConfig().MaxAge,
	}))

	// Probes and metrics are not rate limited.
	r.Get("/healthz", d.health.Healthz)
	r.Get("/readyz", d.health.Readyz)
	r.Method(http.MethodGet, "/metrics", d.recorder.Handler())
	r.Get("/", h.Info)

	r.Route("/users", func(r chi.Router) {
		r.Use(middleware.MaxBodySize(d.cfg.MaxRequestBodySize))
		r.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Logger:  d.logger,
			Limiter: d.limiter,
			Enabled: d.cfg.RateLimitEnabled,
		}))
		d.userMatch.Routes(r)
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
