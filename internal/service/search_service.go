package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/dom/social-backend/internal/cache"
	"github.com/dom/social-backend/internal/config"
	"github.com/dom/social-backend/internal/domain"
	"github.com/dom/social-backend/internal/eventbus"
	"github.com/dom/social-backend/internal/metrics"
	"github.com/dom/social-backend/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultSearchLimit = 10

// SearchService maintains the searchable projection of posts from post
// events and answers queries against it.
type SearchService struct {
	searchRepo repository.SearchRepository
	cache      cache.Cache
	cfg        *config.Config
	logger     *zap.Logger
	metrics    metrics.Recorder
}

func NewSearchService(searchRepo repository.SearchRepository, c cache.Cache, cfg *config.Config, logger *zap.Logger, rec metrics.Recorder) *SearchService {
	return &SearchService{
		searchRepo: searchRepo,
		cache:      c,
		cfg:        cfg,
		logger:     logger.Named("search"),
		metrics:    rec,
	}
}

func (s *SearchService) Subscriptions() map[string]eventbus.Handler {
	return map[string]eventbus.Handler{
		domain.TopicPostCreated: s.HandlePostCreated,
		domain.TopicPostDeleted: s.HandlePostDeleted,
	}
}

// HandlePostCreated upserts the projection, so redelivery overwrites
// rather than duplicates.
func (s *SearchService) HandlePostCreated(ctx context.Context, event *domain.Event) error {
	var payload domain.PostCreated
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", event.Topic, err)
	}
	if payload.PostID == uuid.Nil {
		return fmt.Errorf("%w: %s without post id", domain.ErrInvalidInput, event.Topic)
	}

	doc := &domain.SearchDocument{
		PostID:    payload.PostID,
		UserID:    payload.UserID,
		Content:   payload.Content,
		CreatedAt: payload.CreatedAt,
	}
	if err := s.searchRepo.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("index post %s: %w", payload.PostID, err)
	}
	s.logger.Info("post indexed", zap.String("post_id", payload.PostID.String()), zap.String("event_id", event.ID))

	s.invalidate(ctx)
	return nil
}

// HandlePostDeleted removes the projection. A missing projection is fine:
// the delete may have overtaken its create, or been delivered twice.
func (s *SearchService) HandlePostDeleted(ctx context.Context, event *domain.Event) error {
	var payload domain.PostDeleted
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", event.Topic, err)
	}

	existed, err := s.searchRepo.DeleteByPostID(ctx, payload.PostID)
	if err != nil {
		return fmt.Errorf("deindex post %s: %w", payload.PostID, err)
	}
	if !existed {
		s.logger.Debug("no projection to remove", zap.String("post_id", payload.PostID.String()))
		return nil
	}
	s.logger.Info("post deindexed", zap.String("post_id", payload.PostID.String()), zap.String("event_id", event.ID))

	s.invalidate(ctx)
	return nil
}

func (s *SearchService) Search(ctx context.Context, query string, limit int) ([]*domain.SearchDocument, error) {
	if limit < 1 || limit > maxPageLimit {
		limit = defaultSearchLimit
	}
	query = strings.TrimSpace(query)

	return cache.ReadThrough(ctx, s.cache, s.metrics, s.logger, cache.SearchKey(query, limit), s.cfg.PostListCacheTTL,
		func(ctx context.Context) ([]*domain.SearchDocument, error) {
			docs, err := s.searchRepo.Search(ctx, query, limit)
			if err != nil {
				return nil, fmt.Errorf("search posts: %w", err)
			}
			if docs == nil {
				docs = []*domain.SearchDocument{}
			}
			return docs, nil
		})
}

// invalidate drops cached search results after the projection changed. A
// failure leaves results stale for at most the cache TTL, which is the
// bound the search service already lives with.
func (s *SearchService) invalidate(ctx context.Context) {
	n, err := s.cache.DeleteByPrefix(ctx, cache.SearchPrefix)
	if err != nil {
		s.logger.Warn("search cache invalidation failed", zap.Error(err))
		return
	}
	s.metrics.CacheInvalidated(cache.SearchPrefix, n)
}
