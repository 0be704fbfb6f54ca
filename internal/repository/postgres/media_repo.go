package postgres

import (
	"context"

	"github.com/dom/social-backend/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type mediaRepository struct {
	db *gorm.DB
}

func NewMediaRepository(db *gorm.DB) *mediaRepository {
	return &mediaRepository{db: db}
}

func (r *mediaRepository) Create(ctx context.Context, media *domain.Media) error {
	return r.db.WithContext(ctx).Create(media).Error
}

func (r *mediaRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Media, error) {
	var media domain.Media
	if err := r.db.WithContext(ctx).First(&media, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &media, nil
}

func (r *mediaRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Media, error) {
	var media []*domain.Media
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&media).Error
	return media, err
}

func (r *mediaRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&domain.Media{}, "id = ?", id)
	return result.RowsAffected > 0, result.Error
}
