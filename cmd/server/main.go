package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nestmatch/engine/internal/app"
	"github.com/nestmatch/engine/internal/cache"
	"github.com/nestmatch/engine/internal/config"
	"github.com/nestmatch/engine/internal/db"
	"github.com/nestmatch/engine/internal/logger"
	"github.com/nestmatch/engine/internal/metrics"
	"github.com/nestmatch/engine/internal/repository"
	"github.com/nestmatch/engine/internal/server"
	"github.com/nestmatch/engine/internal/service/engagement"
	"github.com/nestmatch/engine/internal/session"
	"github.com/nestmatch/engine/internal/stream"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// Inject shared deps into app context
	appCtx := app.New(cfg, database, redisCache, log)

	if cfg.App.Env == "development" {
		if err := db.SeedTestData(appCtx.DB); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	publisher := stream.NewRedisPublisher(appCtx.RedisCache.Client, log)
	profiles := repository.NewProfileRepository(appCtx.DB)
	likes := repository.NewLikeRepository(appCtx.DB, publisher, log)
	matches := repository.NewMatchRepository(appCtx.DB, publisher, log)
	messages := repository.NewMessageRepository(appCtx.DB, publisher, log)
	swipes := repository.NewSwipeStore(likes, matches, log)

	sessions := session.NewManager(cfg, profiles, likes, matches, messages, swipes, appCtx.RedisCache, nil, log)
	defer sessions.CloseAll()

	registrars := []server.Registrar{
		engagement.NewService(cfg, profiles, sessions, log),
	}
	srv := server.New(cfg, log, registrars...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", "err", err)
		}
	case err := <-errCh:
		if err != nil {
			log.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}
}
