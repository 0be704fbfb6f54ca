package postgres

import (
	"context"
	"time"

	"github.com/dom/social-backend/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type refreshTokenRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) *refreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *refreshTokenRepository) GetByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	var rt domain.RefreshToken
	if err := r.db.WithContext(ctx).First(&rt, "token = ?", token).Error; err != nil {
		return nil, notFound(err)
	}
	return &rt, nil
}

// Consume is DELETE ... WHERE token = ? RETURNING *, so lookup and removal
// cannot interleave with another rotation of the same token.
func (r *refreshTokenRepository) Consume(ctx context.Context, token string) (*domain.RefreshToken, error) {
	var deleted []domain.RefreshToken
	result := r.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("token = ?", token).
		Delete(&deleted)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 || len(deleted) == 0 {
		return nil, domain.ErrNotFound
	}
	return &deleted[0], nil
}

func (r *refreshTokenRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&domain.RefreshToken{}, "token = ?", token)
	return result.RowsAffected > 0, result.Error
}

func (r *refreshTokenRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.RefreshToken{}, "id = ?", id).Error
}

func (r *refreshTokenRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&domain.RefreshToken{}, "user_id = ?", userID)
	return result.RowsAffected, result.Error
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&domain.RefreshToken{}, "expires_at < ?", before)
	return result.RowsAffected, result.Error
}
