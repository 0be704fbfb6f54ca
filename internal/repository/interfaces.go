package repository

import (
	"context"
	"time"

	"github.com/dom/social-backend/internal/domain"
	"github.com/google/uuid"
)

// Lookups return domain.ErrNotFound when no row matches.

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
}

// RefreshTokenRepository is the credential store.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	GetByToken(ctx context.Context, token string) (*domain.RefreshToken, error)
	// Consume deletes the record in a single statement and returns what was
	// deleted. Of two concurrent callers with the same token at most one gets
	// the record; the other gets domain.ErrNotFound.
	Consume(ctx context.Context, token string) (*domain.RefreshToken, error)
	DeleteByToken(ctx context.Context, token string) (bool, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type PostRepository interface {
	Create(ctx context.Context, post *domain.Post) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Post, error)
	List(ctx context.Context, offset, limit int) ([]*domain.Post, int64, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type MediaRepository interface {
	Create(ctx context.Context, media *domain.Media) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Media, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Media, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// SearchRepository holds the search projection.
type SearchRepository interface {
	Upsert(ctx context.Context, doc *domain.SearchDocument) error
	GetByPostID(ctx context.Context, postID uuid.UUID) (*domain.SearchDocument, error)
	DeleteByPostID(ctx context.Context, postID uuid.UUID) (bool, error)
	Search(ctx context.Context, query string, limit int) ([]*domain.SearchDocument, error)
}

type Repositories struct {
	User         UserRepository
	RefreshToken RefreshTokenRepository
	Post         PostRepository
	Media        MediaRepository
	Search       SearchRepository
}
