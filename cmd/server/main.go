// Command server boots the WhatsApp scheduling backend: configuration,
// logging, tracing, the SQLite store, the optional Redis dispatch cache,
// the gateway client, the dispatch loop, and the HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/zapvite/go-wa-backend/internal/cache"
	"github.com/zapvite/go-wa-backend/internal/config"
	"github.com/zapvite/go-wa-backend/internal/dedup"
	"github.com/zapvite/go-wa-backend/internal/events"
	httpapi "github.com/zapvite/go-wa-backend/internal/http"
	"github.com/zapvite/go-wa-backend/internal/observability"
	"github.com/zapvite/go-wa-backend/internal/reply"
	"github.com/zapvite/go-wa-backend/internal/repo"
	"github.com/zapvite/go-wa-backend/internal/scheduler"
	"github.com/zapvite/go-wa-backend/internal/services"
	"github.com/zapvite/go-wa-backend/internal/sysutil"
	"github.com/zapvite/go-wa-backend/internal/whatsapp"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing (no-op unless OTEL_ENABLED)
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	// Storage
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		log.Warn().Err(err).Msg("gorm tracing plugin")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}

	// Optional Redis-backed dispatch markers. A nil cache disables the layer.
	var dispatchCache *cache.DispatchCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, continuing without dispatch cache")
		} else {
			dispatchCache = cache.NewDispatchCache(rdb, cfg.Redis.TTL)
			log.Info().Str("addr", cfg.Redis.Addr).Msg("dispatch cache enabled")
		}
	}

	// Gateway transport and dispatch pipeline
	gateway := whatsapp.NewClient(cfg.Gateway.URL, cfg.Gateway.Timeout)
	dispatch := &services.DispatchService{
		DB:                 db,
		Transport:          gateway,
		Guard:              dedup.NewGuard(),
		Cache:              dispatchCache,
		SessionPrefix:      cfg.Gateway.SessionPrefix,
		DefaultCountryCode: cfg.DefaultCountryCode,
		SendInterval:       cfg.Scheduler.SendInterval,
		StaleClaimAfter:    cfg.Scheduler.StaleClaimAfter,
		RetainSent:         cfg.RetainSentMessages,
	}

	loop, err := scheduler.New(cfg.Scheduler.Interval, dispatch.DispatchDue)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler setup failed")
	}
	if cfg.Scheduler.AutoStart {
		loop.Start()
		log.Info().Dur("interval", cfg.Scheduler.Interval).Msg("dispatch loop started")
	}
	defer loop.Stop()

	// HTTP API
	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Dependencies{
		Dispatch:   dispatch,
		Scheduler:  loop,
		Ring:       events.NewRing(cfg.RecentEventsSize),
		Classifier: reply.NewClassifier(cfg.AffirmativeWords, cfg.NegativeWords),
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}
