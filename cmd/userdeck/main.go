package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/userdeck/pkg/api"
	"github.com/platinummonkey/userdeck/pkg/auth"
	"github.com/platinummonkey/userdeck/pkg/config"
	"github.com/platinummonkey/userdeck/pkg/middleware"
	"github.com/platinummonkey/userdeck/pkg/observability"
	"github.com/platinummonkey/userdeck/pkg/ratelimit"
	"github.com/platinummonkey/userdeck/pkg/users"
	"github.com/platinummonkey/userdeck/pkg/users/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	// Database
	db, err := postgres.Connect(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	store := postgres.NewStore(db, logger)
	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	service := users.NewService(store, logger, users.WithMetrics(metrics))

	// Rate limiting: Redis when configured, otherwise in-process
	var limiter middleware.Limiter
	var memStore *ratelimit.Store
	var redisStore *ratelimit.RedisStore
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid Redis URL: %v", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		opts.DB = cfg.Redis.DB
		opts.MaxRetries = cfg.Redis.MaxRetries
		opts.PoolSize = cfg.Redis.PoolSize

		client := redis.NewClient(opts)
		defer client.Close()

		redisStore = ratelimit.NewRedisStore(client, cfg.Redis.KeyPrefix)
		limiter = redisStore
		logger.Info("rate limiting backed by redis")
	} else {
		memStore = ratelimit.NewStore()
		limiter = &middleware.MemoryLimiter{Store: memStore}
		logger.Info("rate limiting backed by in-process store")
	}

	// Session resolution: OIDC when configured, otherwise database sessions
	var provider auth.Provider
	if cfg.Auth.OIDCIssuerURL != "" {
		oidcProvider, err := auth.NewOIDCProvider(context.Background(), auth.OIDCConfig{
			IssuerURL: cfg.Auth.OIDCIssuerURL,
			ClientID:  cfg.Auth.OIDCClientID,
		}, store)
		if err != nil {
			log.Fatalf("Failed to initialize OIDC provider: %v", err)
		}
		provider = oidcProvider
		logger.WithField("issuer", cfg.Auth.OIDCIssuerURL).Info("token verification via OIDC")
	} else {
		provider = store
		logger.Info("token verification via database sessions")
	}

	resolver := auth.NewResolver(provider,
		auth.WithCache(cfg.Auth.SessionCacheLen, cfg.Auth.SessionCacheTTL))

	serverOpts := api.Options{
		Logger:  logger,
		Metrics: metrics,
		RateLimit: api.RateLimitOptions{
			Limiter:        limiter,
			Window:         cfg.RateLimit.Window,
			Max:            cfg.RateLimit.Max,
			SkipSuccessful: cfg.RateLimit.SkipSuccessful,
			SkipFailed:     cfg.RateLimit.SkipFailed,
		},
		Security: api.SecurityOptions{
			AllowedOrigins: cfg.Security.AllowedOrigins,
			DeniedIPs:      cfg.Security.DeniedIPs,
			MaxBodyBytes:   cfg.Security.MaxBodyBytes,
		},
		DBCheck: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(ctx)
		},
	}
	if redisStore != nil {
		serverOpts.RedisCheck = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisStore.Ping(ctx)
		}
	}
	server := api.NewServer(service, resolver, serverOpts)

	// Maintenance cron: reap expired rate limit windows and sessions
	c := cron.New()
	schedule := "@every " + cfg.RateLimit.ReapInterval.String()
	if _, err := c.AddFunc(schedule, func() {
		if memStore != nil {
			removed := memStore.Reap()
			if metrics != nil {
				metrics.RateLimitKeysActive.Set(float64(memStore.Len()))
			}
			if removed > 0 {
				logger.WithField("removed", removed).Debug("reaped expired rate limit windows")
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if removed, err := store.DeleteExpiredSessions(ctx, time.Now().UTC()); err != nil {
			logger.WithError(err).Warn("session cleanup failed")
		} else if removed > 0 {
			logger.WithField("removed", removed).Debug("deleted expired sessions")
		}
	}); err != nil {
		log.Fatalf("Failed to schedule maintenance job: %v", err)
	}
	c.Start()

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		cronCtx := c.Stop()
		<-cronCtx.Done()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("API server shutdown failed")
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	logger.Info("stopped")
}
