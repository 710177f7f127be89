package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/chabad-mafteach/mafteach/internal/cache"
	"github.com/chabad-mafteach/mafteach/internal/config"
	"github.com/chabad-mafteach/mafteach/internal/domain"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/smartmode"
	kvredis "github.com/chabad-mafteach/mafteach/internal/kv/redis"
	logpkg "github.com/chabad-mafteach/mafteach/internal/logger"
	"github.com/chabad-mafteach/mafteach/internal/metrics"
	"github.com/chabad-mafteach/mafteach/internal/ratelimit"
	contentrepo "github.com/chabad-mafteach/mafteach/internal/repository/content"
	"github.com/chabad-mafteach/mafteach/internal/repository/embcache"
	vectorrepo "github.com/chabad-mafteach/mafteach/internal/repository/vector"
	chiTransport "github.com/chabad-mafteach/mafteach/internal/transport/chi"
	"github.com/chabad-mafteach/mafteach/internal/transport/directus"
	"github.com/chabad-mafteach/mafteach/internal/transport/openrouter"
	healthuc "github.com/chabad-mafteach/mafteach/internal/usecase/health"
	searchuc "github.com/chabad-mafteach/mafteach/internal/usecase/search"
	"github.com/chabad-mafteach/mafteach/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting mafteach search API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("cms_base_url", cfg.CMS.BaseURL),
		zap.String("cache_driver", cfg.Cache.Driver),
	)

	metrics.RegisterSearchMetrics()

	// Result cache — in-memory by default, Redis for multi-instance
	// deployments sharing one cache.
	var store cache.Store
	var stats cache.StatsReporter
	switch cfg.Cache.Driver {
	case "redis":
		kvStore, err := kvredis.NewStore(kvredis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create redis cache store", zap.Error(err))
		}
		defer kvStore.Close()

		if err := kvStore.WaitForReady(context.Background(), 30*time.Second); err != nil {
			logger.Fatal("Redis cache not ready", zap.Error(err))
		}
		logger.Info("Connected to redis cache")

		store = cache.NewRedis(kvStore, cfg.Cache.KeyPrefix,
			time.Duration(cfg.Search.ResultTTLMin)*time.Minute)

	default:
		mem := cache.NewMemory(
			cache.WithDefaultTTL(time.Duration(cfg.Search.ResultTTLMin) * time.Minute),
		)
		mem.StartJanitor(time.Duration(cfg.Search.CleanupIntervalMin) * time.Minute)
		defer mem.StopJanitor()
		store = mem
		stats = mem
	}

	// CMS client
	cms := directus.NewClient(&directus.Config{
		BaseURL: cfg.CMS.BaseURL,
		Token:   cfg.CMS.Token,
		Timeout: time.Duration(cfg.CMS.TimeoutSec) * time.Second,
		Logger:  logger,
	})

	// Embedder chain: OpenRouter -> Cached. Nil when unconfigured; the
	// smart selector then falls back to keyword search.
	var embedder domain.Embedder
	if cfg.Embedding.Available() {
		base := openrouter.NewEmbedder(&openrouter.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Logger:     logger,
		})
		embedder = embcache.New(
			base, store, cfg.Embedding.Model,
			time.Duration(cfg.Embedding.CacheTTLHr)*time.Hour,
			metrics.EmbeddingCacheTotal, logger,
		)
		logger.Info("Embedder created",
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
	} else {
		logger.Warn("Embedding provider not configured; semantic search disabled")
	}

	// Repositories
	contents := contentrepo.New(cms)
	vectors := vectorrepo.New(cms, logger, cfg.Search.CandidateLimit)

	caps := smartmode.Capabilities{
		EmbeddingAvailable:  cfg.Embedding.Available(),
		VectorDataAvailable: cfg.Embedding.Available(),
	}

	searchSvc := searchuc.New(
		embedder, vectors, contents, store, caps, logger,
		searchuc.WithResultTTL(time.Duration(cfg.Search.ResultTTLMin)*time.Minute),
		searchuc.WithThreshold(cfg.Search.DefaultThreshold),
	)

	var embChecker healthuc.EmbeddingChecker
	if hc, ok := embedder.(domain.HealthChecker); ok {
		embChecker = hc
	}
	healthSvc := healthuc.New(cms, embChecker, stats)

	// Per-IP limiters, one bucket per endpoint group so heavy semantic
	// use cannot starve smart search, plus a tighter bucket for failed
	// auth attempts.
	searchLimiter := ratelimit.New(cfg.RateLimit.SearchPerMinute, time.Minute,
		ratelimit.WithBypass(cfg.RateLimit.Bypass))
	semanticLimiter := ratelimit.New(cfg.RateLimit.SearchPerMinute, time.Minute,
		ratelimit.WithBypass(cfg.RateLimit.Bypass))
	authLimiter := ratelimit.New(cfg.RateLimit.AuthPerMinute, time.Minute,
		ratelimit.WithBypass(cfg.RateLimit.Bypass))
	for _, l := range []*ratelimit.Limiter{searchLimiter, semanticLimiter, authLimiter} {
		l.StartJanitor(time.Minute)
		defer l.StopJanitor()
	}

	server := chiTransport.NewServer(searchSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys, authLimiter))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Router(
		ratelimit.Middleware(searchLimiter),
		ratelimit.Middleware(semanticLimiter),
	))

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"error": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
