package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dom/social-backend/internal/cache"
	"github.com/dom/social-backend/internal/domain"
	"github.com/dom/social-backend/internal/metrics"
	"github.com/dom/social-backend/internal/service"
	"github.com/dom/social-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func event(t *testing.T, topic string, payload any) *domain.Event {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &domain.Event{
		Version:    domain.EventVersion,
		ID:         uuid.NewString(),
		Topic:      topic,
		OccurredAt: time.Now(),
		Data:       data,
	}
}

func newSearchService() (*service.SearchService, *fakeSearchRepo, *fakeCache) {
	repo := newFakeSearchRepo()
	c := newFakeCache()
	return service.NewSearchService(repo, c, testutil.TestConfig(), zap.NewNop(), metrics.Nop{}), repo, c
}

func TestSearchService_PostCreatedIsIdempotent(t *testing.T) {
	svc, repo, _ := newSearchService()
	ctx := context.Background()

	created := domain.PostCreated{PostID: uuid.New(), UserID: uuid.New(), Content: "golang tips", CreatedAt: time.Now()}
	ev := event(t, domain.TopicPostCreated, created)

	require.NoError(t, svc.HandlePostCreated(ctx, ev))
	require.NoError(t, svc.HandlePostCreated(ctx, ev))
	assert.Equal(t, 1, repo.len())

	doc, err := repo.GetByPostID(ctx, created.PostID)
	require.NoError(t, err)
	assert.Equal(t, "golang tips", doc.Content)
}

func TestSearchService_PostDeletedIsIdempotent(t *testing.T) {
	svc, repo, _ := newSearchService()
	ctx := context.Background()

	postID := uuid.New()
	require.NoError(t, svc.HandlePostCreated(ctx, event(t, domain.TopicPostCreated, domain.PostCreated{PostID: postID, Content: "x"})))

	deleted := event(t, domain.TopicPostDeleted, domain.PostDeleted{PostID: postID})
	require.NoError(t, svc.HandlePostDeleted(ctx, deleted))
	require.NoError(t, svc.HandlePostDeleted(ctx, deleted))
	assert.Equal(t, 0, repo.len())

	// Delete overtaking its create.
	require.NoError(t, svc.HandlePostDeleted(ctx, event(t, domain.TopicPostDeleted, domain.PostDeleted{PostID: uuid.New()})))
}

func TestSearchService_RejectsBadPayload(t *testing.T) {
	svc, _, _ := newSearchService()
	ctx := context.Background()

	tests := []struct {
		name  string
		event *domain.Event
	}{
		{"not json", &domain.Event{Topic: domain.TopicPostCreated, Data: json.RawMessage(`"nope"`)}},
		{"missing post id", event(t, domain.TopicPostCreated, domain.PostCreated{Content: "orphan"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, svc.HandlePostCreated(ctx, tt.event))
		})
	}
}

func TestSearchService_SearchInvalidatedByProjectionChange(t *testing.T) {
	svc, _, c := newSearchService()
	ctx := context.Background()

	results, err := svc.Search(ctx, "gopher", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Contains(t, c.keys(), cache.SearchKey("gopher", 10))

	postID := uuid.New()
	require.NoError(t, svc.HandlePostCreated(ctx, event(t, domain.TopicPostCreated, domain.PostCreated{PostID: postID, Content: "a gopher appears"})))

	results, err = svc.Search(ctx, "gopher", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, postID, results[0].PostID)
}

func TestSearchService_Subscriptions(t *testing.T) {
	svc, _, _ := newSearchService()
	subs := svc.Subscriptions()
	assert.Contains(t, subs, domain.TopicPostCreated)
	assert.Contains(t, subs, domain.TopicPostDeleted)
}
