package postgres

import (
	"context"

	"github.com/dom/social-backend/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *postRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *domain.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *postRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Post, error) {
	var post domain.Post
	if err := r.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, offset, limit int) ([]*domain.Post, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.Post{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var posts []*domain.Post
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (r *postRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&domain.Post{}, "id = ?", id)
	return result.RowsAffected > 0, result.Error
}
