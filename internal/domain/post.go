package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Post is the authoritative aggregate. It is created once and hard-deleted;
// there is no update transition.
type Post struct {
	ID        uuid.UUID                   `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID    uuid.UUID                   `json:"userId" gorm:"type:uuid;index;not null"`
	Content   string                      `json:"content" gorm:"not null"`
	MediaIDs  datatypes.JSONSlice[string] `json:"mediaIds" gorm:"type:jsonb"`
	CreatedAt time.Time                   `json:"createdAt" gorm:"index"`
}

// PostPage is a paginated listing snapshot, the unit stored in the list cache.
type PostPage struct {
	Posts      []*Post `json:"posts"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	Total      int64   `json:"total"`
	TotalPages int     `json:"totalPages"`
}

// SearchDocument is the search service's projection of a post, keyed by post id.
type SearchDocument struct {
	PostID    uuid.UUID `json:"postId" gorm:"type:uuid;primary_key"`
	UserID    uuid.UUID `json:"userId" gorm:"type:uuid;index;not null"`
	Content   string    `json:"content" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}

type Media struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PublicID     string    `json:"publicId" gorm:"uniqueIndex;not null"`
	OriginalName string    `json:"originalName" gorm:"not null"`
	MimeType     string    `json:"mimeType" gorm:"not null"`
	URL          string    `json:"url" gorm:"not null"`
	UserID       uuid.UUID `json:"userId" gorm:"type:uuid;index;not null"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (Media) TableName() string { return "media" }
