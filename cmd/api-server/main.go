package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/vidasaude/telehealth-core/internal/api"
	"github.com/vidasaude/telehealth-core/internal/appointment"
	"github.com/vidasaude/telehealth-core/internal/auth"
	"github.com/vidasaude/telehealth-core/internal/cache"
	"github.com/vidasaude/telehealth-core/internal/clock"
	"github.com/vidasaude/telehealth-core/internal/config"
	"github.com/vidasaude/telehealth-core/internal/db"
	"github.com/vidasaude/telehealth-core/internal/payment"
	redisclient "github.com/vidasaude/telehealth-core/internal/redis"
	"github.com/vidasaude/telehealth-core/internal/telemetry"
	"github.com/vidasaude/telehealth-core/internal/video"
	"github.com/vidasaude/telehealth-core/internal/video/daily"
	"github.com/vidasaude/telehealth-core/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.ValidateProviders(); err != nil {
		log.Fatal().Err(err).Msg("provider credentials missing")
	}

	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("version", version).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(rootCtx, "telehealth-api", cfg.OTelEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup error")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown error")
		}
	}()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns:        cfg.PostgresMaxConns,
		ApplicationName: "telehealth-api",
	})
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	if err := db.Migrate(rootCtx, pgPool); err != nil {
		log.Fatal().Err(err).Msg("schema migration error")
	}

	clk := clock.New()

	var (
		rdb      *redis.Client
		sessions auth.SessionStore
		rooms    cache.Cache
		locker   redisclient.Locker
	)
	if cfg.RedisEnabled {
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing redis")
			}
		}()
		log.Info().Msg("connected to Redis")

		sessions = auth.NewRedisSessionStore(rdb)
		rooms = cache.NewRedisCache(rdb, "telehealth:")
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	} else {
		log.Warn().Msg("redis disabled, using in-process sessions, cache and locks")
		sessions = auth.NewMemorySessionStore(clk.Now)
		rooms = cache.NewMemoryCache(clk.Now)
		locker = redisclient.NewLocalLocker()
	}

	provisioner := video.NewProvisioner(
		daily.NewClient(cfg.DailyAPIURL, cfg.DailyAPIKey, cfg.ProviderTimeout),
		video.Options{
			Domain:       cfg.DailyDomain,
			ConfirmDelay: cfg.RoomConfirmDelay,
			Clock:        clk,
			Cache:        rooms,
		},
	)
	payments := payment.NewStripeClient(cfg.StripeSecretKey, cfg.PaymentCurrency, nil)

	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(repo, provisioner, payments, locker, clk, cfg)

	resolver := auth.NewResolver(sessions, auth.NewTokenVerifier(cfg.JWTSecret, clk.Now), cfg.SessionCookieName)

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		Resolver:       resolver,
		PgPool:         pgPool,
		Redis:          rdb,
		Env:            cfg.Env,
		Version:        version,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MetricsEnabled: cfg.MetricsEnabled,
		Sessions:       sessions,
		SessionTTL:     cfg.SessionTTL,
		Dev:            cfg.IsDev(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	log.Info().Msg("api-server stopped")
}
