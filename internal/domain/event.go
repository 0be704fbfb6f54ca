package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventVersion is stamped on every envelope so consumers can evolve
// independently of publishers.
const EventVersion = 1

const (
	TopicPostCreated = "post.created"
	TopicPostDeleted = "post.deleted"
)

// Event is the immutable envelope carried on the bus.
type Event struct {
	Version    int             `json:"version"`
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// Decode unmarshals the event data into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

type PostCreated struct {
	PostID    uuid.UUID `json:"postId"`
	UserID    uuid.UUID `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostDeleted carries the media ids so the media service never has to call
// back into the post service.
type PostDeleted struct {
	PostID   uuid.UUID `json:"postId"`
	UserID   uuid.UUID `json:"userId"`
	MediaIDs []string  `json:"mediaIds"`
}
