package postgres

import (
	"errors"

	"github.com/dom/social-backend/internal/domain"
	"github.com/dom/social-backend/internal/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every table owned by this module, in migration order.
var Models = []any{
	&domain.User{},
	&domain.RefreshToken{},
	&domain.Post{},
	&domain.Media{},
	&domain.SearchDocument{},
}

func NewConnection(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(Models...); err != nil {
		return nil, err
	}

	return db, nil
}

func NewRepositories(db *gorm.DB) *repository.Repositories {
	return &repository.Repositories{
		User:         NewUserRepository(db),
		RefreshToken: NewRefreshTokenRepository(db),
		Post:         NewPostRepository(db),
		Media:        NewMediaRepository(db),
		Search:       NewSearchRepository(db),
	}
}

// notFound maps gorm's sentinel onto the domain one.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
