package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dom/social-backend/internal/domain"
	"github.com/dom/social-backend/internal/eventbus"
	"github.com/dom/social-backend/internal/repository"
	"github.com/dom/social-backend/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MediaService struct {
	mediaRepo repository.MediaRepository
	store     storage.ObjectStore
	logger    *zap.Logger
}

func NewMediaService(mediaRepo repository.MediaRepository, store storage.ObjectStore, logger *zap.Logger) *MediaService {
	return &MediaService{
		mediaRepo: mediaRepo,
		store:     store,
		logger:    logger.Named("media"),
	}
}

func (s *MediaService) Subscriptions() map[string]eventbus.Handler {
	return map[string]eventbus.Handler{
		domain.TopicPostDeleted: s.HandlePostDeleted,
	}
}

type UploadInput struct {
	UserID       uuid.UUID
	OriginalName string
	MimeType     string
	Body         io.Reader
}

func (s *MediaService) Upload(ctx context.Context, input UploadInput) (*domain.Media, error) {
	if strings.TrimSpace(input.OriginalName) == "" || input.MimeType == "" {
		return nil, fmt.Errorf("%w: file name and content type are required", domain.ErrInvalidInput)
	}

	publicID, url, err := s.store.Put(ctx, input.OriginalName, input.Body)
	if err != nil {
		return nil, fmt.Errorf("store media: %w", err)
	}

	media := &domain.Media{
		ID:           uuid.New(),
		PublicID:     publicID,
		OriginalName: input.OriginalName,
		MimeType:     input.MimeType,
		URL:          url,
		UserID:       input.UserID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.mediaRepo.Create(ctx, media); err != nil {
		// Without a row nothing would ever clean the object up.
		if delErr := s.store.Delete(ctx, publicID); delErr != nil {
			s.logger.Warn("orphaned media object", zap.String("public_id", publicID), zap.Error(delErr))
		}
		return nil, fmt.Errorf("save media: %w", err)
	}
	s.logger.Info("media uploaded", zap.String("media_id", media.ID.String()), zap.String("public_id", publicID))
	return media, nil
}

// RegisterMediaInput describes an object that was stored out of band.
type RegisterMediaInput struct {
	UserID       uuid.UUID
	PublicID     string
	OriginalName string
	MimeType     string
	URL          string
}

// Register records an object that already lives in the store.
func (s *MediaService) Register(ctx context.Context, input RegisterMediaInput) (*domain.Media, error) {
	if input.PublicID == "" || input.URL == "" || input.MimeType == "" {
		return nil, fmt.Errorf("%w: public id, url and content type are required", domain.ErrInvalidInput)
	}

	media := &domain.Media{
		ID:           uuid.New(),
		PublicID:     input.PublicID,
		OriginalName: input.OriginalName,
		MimeType:     input.MimeType,
		URL:          input.URL,
		UserID:       input.UserID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.mediaRepo.Create(ctx, media); err != nil {
		return nil, fmt.Errorf("save media: %w", err)
	}
	return media, nil
}

func (s *MediaService) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Media, error) {
	return s.mediaRepo.ListByUserID(ctx, userID)
}

// CascadeReport records what a post.deleted cascade did to each media id.
type CascadeReport struct {
	PostID  uuid.UUID
	Deleted []string
	Skipped []string
	Failed  map[string]error
}

// Err joins the per-item failures, or nil if every item was handled.
func (r *CascadeReport) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for id, err := range r.Failed {
		errs = append(errs, fmt.Errorf("media %s: %w", id, err))
	}
	return errors.Join(errs...)
}

// CascadeDelete removes every media item referenced by a deleted post:
// first the stored object, then the row. Items are independent; one failing
// does not stop the rest, and a failed item keeps its row. Media owned by
// someone other than the post's author is skipped.
func (s *MediaService) CascadeDelete(ctx context.Context, payload domain.PostDeleted) *CascadeReport {
	report := &CascadeReport{PostID: payload.PostID, Failed: make(map[string]error)}

	for _, raw := range payload.MediaIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			report.Failed[raw] = fmt.Errorf("%w: bad media id", domain.ErrInvalidInput)
			continue
		}

		media, err := s.mediaRepo.GetByID(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			report.Skipped = append(report.Skipped, raw)
			continue
		}
		if err != nil {
			report.Failed[raw] = fmt.Errorf("load: %w", err)
			continue
		}
		if media.UserID != payload.UserID {
			report.Skipped = append(report.Skipped, raw)
			s.logger.Warn("deleted post referenced media of another user",
				zap.String("media_id", raw),
				zap.String("post_id", payload.PostID.String()),
				zap.String("post_owner", payload.UserID.String()),
				zap.String("media_owner", media.UserID.String()))
			continue
		}

		if err := s.store.Delete(ctx, media.PublicID); err != nil {
			report.Failed[raw] = fmt.Errorf("delete object %s: %w", media.PublicID, err)
			continue
		}
		if _, err := s.mediaRepo.Delete(ctx, id); err != nil {
			report.Failed[raw] = fmt.Errorf("delete row: %w", err)
			continue
		}
		report.Deleted = append(report.Deleted, raw)
		s.logger.Info("deleted media of deleted post",
			zap.String("media_id", raw), zap.String("post_id", payload.PostID.String()))
	}
	return report
}

// HandlePostDeleted runs the cascade. Per-item failures are logged and
// returned joined so the bus records the event as failed; it is acked either
// way and will not be redelivered.
func (s *MediaService) HandlePostDeleted(ctx context.Context, event *domain.Event) error {
	var payload domain.PostDeleted
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", event.Topic, err)
	}

	report := s.CascadeDelete(ctx, payload)
	for id, err := range report.Failed {
		s.logger.Error("media cleanup failed",
			zap.String("media_id", id),
			zap.String("post_id", payload.PostID.String()),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
	s.logger.Info("processed media cleanup for deleted post",
		zap.String("post_id", payload.PostID.String()),
		zap.Int("deleted", len(report.Deleted)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed)))
	return report.Err()
}
