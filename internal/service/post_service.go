package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dom/social-backend/internal/cache"
	"github.com/dom/social-backend/internal/config"
	"github.com/dom/social-backend/internal/domain"
	"github.com/dom/social-backend/internal/metrics"
	"github.com/dom/social-backend/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	maxContentLength = 5000
)

// Publisher sends domain events to other services.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// PostService owns the authoritative post store. Every mutation commits,
// drops the posts: cache prefix, then publishes its event, all before
// returning to the caller.
type PostService struct {
	postRepo  repository.PostRepository
	cache     cache.Cache
	publisher Publisher
	cfg       *config.Config
	logger    *zap.Logger
	metrics   metrics.Recorder
}

func NewPostService(postRepo repository.PostRepository, c cache.Cache, publisher Publisher, cfg *config.Config, logger *zap.Logger, rec metrics.Recorder) *PostService {
	return &PostService{
		postRepo:  postRepo,
		cache:     c,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("posts"),
		metrics:   rec,
	}
}

type CreatePostInput struct {
	UserID   uuid.UUID
	Content  string
	MediaIDs []string
}

func (s *PostService) Create(ctx context.Context, input CreatePostInput) (*domain.Post, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" || utf8.RuneCountInString(content) > maxContentLength {
		return nil, fmt.Errorf("%w: content must be 1-%d characters", domain.ErrInvalidInput, maxContentLength)
	}
	mediaIDs := input.MediaIDs
	if mediaIDs == nil {
		mediaIDs = []string{}
	}

	post := &domain.Post{
		ID:        uuid.New(),
		UserID:    input.UserID,
		Content:   content,
		MediaIDs:  mediaIDs,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	s.logger.Info("post created", zap.String("post_id", post.ID.String()))

	err := s.afterWrite(ctx, domain.TopicPostCreated, domain.PostCreated{
		PostID:    post.ID,
		UserID:    post.UserID,
		Content:   post.Content,
		CreatedAt: post.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) Get(ctx context.Context, id uuid.UUID) (*domain.Post, error) {
	return cache.ReadThrough(ctx, s.cache, s.metrics, s.logger, cache.PostKey(id), s.cfg.PostCacheTTL,
		func(ctx context.Context) (*domain.Post, error) {
			return s.postRepo.GetByID(ctx, id)
		})
}

func (s *PostService) List(ctx context.Context, page, limit int) (*domain.PostPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	return cache.ReadThrough(ctx, s.cache, s.metrics, s.logger, cache.PostListKey(page, limit), s.cfg.PostListCacheTTL,
		func(ctx context.Context) (*domain.PostPage, error) {
			posts, total, err := s.postRepo.List(ctx, (page-1)*limit, limit)
			if err != nil {
				return nil, fmt.Errorf("list posts: %w", err)
			}
			if posts == nil {
				posts = []*domain.Post{}
			}
			return &domain.PostPage{
				Posts:      posts,
				Page:       page,
				Limit:      limit,
				Total:      total,
				TotalPages: int((total + int64(limit) - 1) / int64(limit)),
			}, nil
		})
}

// Delete removes a post owned by requester. Posts of other users look
// nonexistent.
func (s *PostService) Delete(ctx context.Context, id, requester uuid.UUID) error {
	post, err := s.postRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if post.UserID != requester {
		return domain.ErrNotFound
	}

	deleted, err := s.postRepo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if !deleted {
		// Lost a race with another delete of the same post.
		return domain.ErrNotFound
	}
	s.logger.Info("post deleted", zap.String("post_id", id.String()))

	mediaIDs := []string(post.MediaIDs)
	if mediaIDs == nil {
		mediaIDs = []string{}
	}
	return s.afterWrite(ctx, domain.TopicPostDeleted, domain.PostDeleted{
		PostID:   post.ID,
		UserID:   post.UserID,
		MediaIDs: mediaIDs,
	})
}

// afterWrite runs the post-commit steps. Both always run; a failure in
// either is returned so the caller learns that its write is not fully
// visible.
func (s *PostService) afterWrite(ctx context.Context, topic string, payload any) error {
	invalidateErr := s.invalidate(ctx)

	publishErr := s.publisher.Publish(ctx, topic, payload)
	if publishErr != nil {
		s.logger.Error("post committed but event not published; downstream stores will diverge",
			zap.String("topic", topic), zap.Error(publishErr))
	}

	return errors.Join(invalidateErr, publishErr)
}

func (s *PostService) invalidate(ctx context.Context) error {
	n, err := s.cache.DeleteByPrefix(ctx, cache.PostsPrefix)
	if err != nil {
		s.logger.Error("cache invalidation failed", zap.String("prefix", cache.PostsPrefix), zap.Error(err))
		return fmt.Errorf("invalidate %s: %w: %w", cache.PostsPrefix, domain.ErrTransientInfra, err)
	}
	s.metrics.CacheInvalidated(cache.PostsPrefix, n)
	return nil
}
