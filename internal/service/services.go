package service

import (
	"github.com/dom/social-backend/internal/cache"
	"github.com/dom/social-backend/internal/config"
	"github.com/dom/social-backend/internal/metrics"
	"github.com/dom/social-backend/internal/repository"
	"github.com/dom/social-backend/internal/storage"
	"go.uber.org/zap"
)

type Services struct {
	Auth   *AuthService
	Post   *PostService
	Search *SearchService
	Media  *MediaService
}

type Dependencies struct {
	Repos     *repository.Repositories
	Cache     cache.Cache
	Publisher Publisher
	Store     storage.ObjectStore
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   metrics.Recorder
}

func NewServices(deps Dependencies) *Services {
	return &Services{
		Auth:   NewAuthService(deps.Repos.User, deps.Repos.RefreshToken, deps.Config, deps.Logger, deps.Metrics),
		Post:   NewPostService(deps.Repos.Post, deps.Cache, deps.Publisher, deps.Config, deps.Logger, deps.Metrics),
		Search: NewSearchService(deps.Repos.Search, deps.Cache, deps.Config, deps.Logger, deps.Metrics),
		Media:  NewMediaService(deps.Repos.Media, deps.Store, deps.Logger),
	}
}
