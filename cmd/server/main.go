package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dom/social-backend/internal/api"
	"github.com/dom/social-backend/internal/cache"
	"github.com/dom/social-backend/internal/config"
	"github.com/dom/social-backend/internal/eventbus"
	"github.com/dom/social-backend/internal/events"
	"github.com/dom/social-backend/internal/logger"
	"github.com/dom/social-backend/internal/metrics"
	"github.com/dom/social-backend/internal/repository/postgres"
	"github.com/dom/social-backend/internal/service"
	"github.com/dom/social-backend/internal/storage"
	"github.com/dom/social-backend/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const tokenPurgeInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Initialize repositories
	repos := postgres.NewRepositories(db)

	redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	store, err := storage.NewLocalStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		log.Fatal("failed to open media store", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(registry)

	// Publishing connects on first use. Consumers subscribe below, so a
	// process running search, media or feed needs the broker at boot.
	bus := eventbus.New(eventbus.Config{
		URL:            cfg.RabbitMQURL,
		Exchange:       cfg.EventExchange,
		HandlerTimeout: cfg.EventHandlerTimeout,
	}, log, rec)
	defer bus.Close()

	// Initialize services
	services := service.NewServices(service.Dependencies{
		Repos:     repos,
		Cache:     cache.NewRedisCache(redisClient),
		Publisher: bus,
		Store:     store,
		Config:    cfg,
		Logger:    log,
		Metrics:   rec,
	})

	// Initialize WebSocket hub
	hub := websocket.NewHub(log)
	go hub.Run()
	defer hub.Stop()

	var consumers []events.Consumer
	if cfg.Enabled("search") {
		consumers = append(consumers, services.Search)
	}
	if cfg.Enabled("media") {
		consumers = append(consumers, services.Media)
	}
	if cfg.Enabled("feed") {
		consumers = append(consumers, hub)
	}
	if err := events.Register(ctx, bus, log, consumers...); err != nil {
		log.Fatal("failed to register event consumers", zap.Error(err))
	}

	if cfg.Enabled("identity") {
		go purgeExpiredTokens(ctx, services.Auth, logger.WithComponent(log, "token_purge"))
	}

	// Initialize router
	router := api.NewRouter(api.RouterDeps{
		Services: services,
		Hub:      hub,
		Files:    store,
		Limits:   redisClient,
		Gatherer: registry,
		Config:   cfg,
		Logger:   log,
	})

	// Create server
	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.Strings("services", cfg.Services))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// purgeExpiredTokens deletes expired refresh tokens until ctx is done.
func purgeExpiredTokens(ctx context.Context, auth *service.AuthService, log *zap.Logger) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := auth.PurgeExpired(ctx)
			if err != nil {
				log.Warn("failed to purge expired refresh tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged expired refresh tokens", zap.Int64("count", n))
			}
		}
	}
}
