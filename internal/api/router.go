package api

import (
	"net/http"

	"github.com/dom/social-backend/internal/api/handlers"
	"github.com/dom/social-backend/internal/api/middleware"
	"github.com/dom/social-backend/internal/config"
	"github.com/dom/social-backend/internal/metrics"
	"github.com/dom/social-backend/internal/service"
	"github.com/dom/social-backend/internal/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Services *service.Services
	Hub      *websocket.Hub
	Files    handlers.FileOpener
	// Limits holds rate limit counters shared across processes. Without it
	// the register limit is not applied.
	Limits   redis.Cmdable
	Gatherer prometheus.Gatherer
	Config   *config.Config
	Logger   *zap.Logger
}

// NewRouter mounts the routes of every service enabled in cfg.Services.
func NewRouter(deps RouterDeps) http.Handler {
	cfg := deps.Config
	services := deps.Services
	logger := deps.Logger

	r := chi.NewRouter()

	// Global middleware
	// Client IP is the socket peer; forwarding headers are not trusted.
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	requireAuth := middleware.Auth(services.Auth, logger)

	if cfg.Enabled("media") && deps.Files != nil {
		mediaHandler := handlers.NewMediaHandler(services.Media, deps.Files, logger)
		r.Get("/media/{publicID}", mediaHandler.Serve)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.Handler)

		if cfg.Enabled("identity") {
			authHandler := handlers.NewAuthHandler(services.Auth, logger)
			r.Route("/auth", func(r chi.Router) {
				if deps.Limits != nil {
					registerLimiter := middleware.NewWindowLimiter(deps.Limits, "register", cfg.RegisterRateLimit, cfg.RegisterRateWindow, logger)
					r.With(registerLimiter.Handler).Post("/register", authHandler.Register)
				} else {
					r.Post("/register", authHandler.Register)
				}
				r.Post("/login", authHandler.Login)
				r.Post("/refresh-token", authHandler.RefreshToken)
				r.Post("/logout", authHandler.Logout)

				r.Group(func(r chi.Router) {
					r.Use(requireAuth)
					r.Get("/me", authHandler.Me)
				})
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			if cfg.Enabled("posts") {
				postHandler := handlers.NewPostHandler(services.Post, logger)
				r.Route("/posts", func(r chi.Router) {
					r.Post("/", postHandler.Create)
					r.Get("/", postHandler.List)
					r.Get("/{id}", postHandler.Get)
					r.Delete("/{id}", postHandler.Delete)
				})
			}

			if cfg.Enabled("media") {
				mediaHandler := handlers.NewMediaHandler(services.Media, deps.Files, logger)
				r.Route("/media", func(r chi.Router) {
					r.Post("/", mediaHandler.Register)
					r.Post("/upload", mediaHandler.Upload)
					r.Get("/", mediaHandler.List)
				})
			}

			if cfg.Enabled("search") {
				searchHandler := handlers.NewSearchHandler(services.Search, logger)
				r.Get("/search", searchHandler.Search)
			}
		})

		if cfg.Enabled("feed") && deps.Hub != nil {
			feedHandler := handlers.NewFeedHandler(deps.Hub, services.Auth, logger)
			r.Get("/feed/ws", feedHandler.Handle)
		}
	})

	return r
}
