// Package cache is the key/value layer used for hot post queries and as the
// target of prefix invalidation after writes.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cache is a TTL-bounded byte store. Get reports a miss with ok=false and a
// nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeleteByPrefix removes every key starting with prefix and returns how
	// many were removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

// PostsPrefix scopes every cached view of the post aggregate. Any post write
// drops the whole prefix rather than the individual keys it touched.
const PostsPrefix = "posts:"

func PostListKey(page, limit int) string {
	return fmt.Sprintf("%s%d:%d", PostsPrefix, page, limit)
}

func PostKey(id uuid.UUID) string {
	return PostsPrefix + "id:" + id.String()
}

// SearchPrefix scopes cached search results in the search service.
const SearchPrefix = "search:"

func SearchKey(query string, limit int) string {
	return fmt.Sprintf("%s%d:%s", SearchPrefix, limit, query)
}
