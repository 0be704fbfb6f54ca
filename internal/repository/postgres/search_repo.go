package postgres

import (
	"context"
	"strings"

	"github.com/dom/social-backend/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type searchRepository struct {
	db *gorm.DB
}

func NewSearchRepository(db *gorm.DB) *searchRepository {
	return &searchRepository{db: db}
}

// Upsert overwrites an existing projection so duplicate deliveries converge.
func (r *searchRepository) Upsert(ctx context.Context, doc *domain.SearchDocument) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "content", "created_at"}),
		}).
		Create(doc).Error
}

func (r *searchRepository) GetByPostID(ctx context.Context, postID uuid.UUID) (*domain.SearchDocument, error) {
	var doc domain.SearchDocument
	if err := r.db.WithContext(ctx).First(&doc, "post_id = ?", postID).Error; err != nil {
		return nil, notFound(err)
	}
	return &doc, nil
}

func (r *searchRepository) DeleteByPostID(ctx context.Context, postID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&domain.SearchDocument{}, "post_id = ?", postID)
	return result.RowsAffected > 0, result.Error
}

func (r *searchRepository) Search(ctx context.Context, query string, limit int) ([]*domain.SearchDocument, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if query = strings.TrimSpace(query); query != "" {
		q = q.Where("content ILIKE ? ESCAPE '\\'", "%"+escapeLike(query)+"%")
	}

	var docs []*domain.SearchDocument
	err := q.Find(&docs).Error
	return docs, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
