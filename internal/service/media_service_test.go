package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/dom/social-backend/internal/domain"
	"github.com/dom/social-backend/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMediaService() (*service.MediaService, *fakeMediaRepo, *fakeStore) {
	repo := newFakeMediaRepo()
	store := newFakeStore()
	return service.NewMediaService(repo, store, zap.NewNop()), repo, store
}

func TestMediaService_Upload(t *testing.T) {
	svc, repo, store := newMediaService()
	userID := uuid.New()

	media, err := svc.Upload(context.Background(), service.UploadInput{
		UserID:       userID,
		OriginalName: "cat.png",
		MimeType:     "image/png",
		Body:         strings.NewReader("png bytes"),
	})
	require.NoError(t, err)
	assert.True(t, repo.has(media.ID))
	assert.True(t, store.has(media.PublicID))
	assert.Equal(t, userID, media.UserID)

	_, err = svc.Upload(context.Background(), service.UploadInput{UserID: userID, Body: strings.NewReader("")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMediaService_Register(t *testing.T) {
	svc, repo, _ := newMediaService()
	ctx := context.Background()

	media, err := svc.Register(ctx, service.RegisterMediaInput{
		UserID:   uuid.New(),
		PublicID: "remote-1",
		MimeType: "image/jpeg",
		URL:      "https://cdn.example.com/remote-1",
	})
	require.NoError(t, err)
	assert.True(t, repo.has(media.ID))

	_, err = svc.Register(ctx, service.RegisterMediaInput{UserID: uuid.New(), PublicID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// One failing item must not stop the rest, and keeps its row.
func TestMediaService_CascadeContinuesPastFailures(t *testing.T) {
	svc, repo, store := newMediaService()
	ctx := context.Background()
	owner := uuid.New()

	upload := func(name string) *domain.Media {
		m, err := svc.Upload(ctx, service.UploadInput{UserID: owner, OriginalName: name, MimeType: "image/png", Body: strings.NewReader(name)})
		require.NoError(t, err)
		return m
	}
	m1, m2, m3 := upload("m1.png"), upload("m2.png"), upload("m3.png")
	store.failOn[m1.PublicID] = errBoom
	missing := uuid.New()

	payload := domain.PostDeleted{
		PostID:   uuid.New(),
		UserID:   owner,
		MediaIDs: []string{m1.ID.String(), m2.ID.String(), missing.String(), "not-a-uuid", m3.ID.String()},
	}
	report := svc.CascadeDelete(ctx, payload)

	assert.ElementsMatch(t, []string{m2.ID.String(), m3.ID.String()}, report.Deleted)
	assert.Equal(t, []string{missing.String()}, report.Skipped)
	assert.Len(t, report.Failed, 2)
	assert.ErrorIs(t, report.Failed[m1.ID.String()], errBoom)
	assert.ErrorIs(t, report.Failed["not-a-uuid"], domain.ErrInvalidInput)

	assert.True(t, repo.has(m1.ID), "row kept when object delete fails")
	assert.True(t, store.has(m1.PublicID))
	assert.False(t, repo.has(m2.ID))
	assert.False(t, store.has(m2.PublicID))
	assert.False(t, repo.has(m3.ID))
}

func TestMediaService_HandlePostDeleted(t *testing.T) {
	svc, repo, store := newMediaService()
	ctx := context.Background()

	owner := uuid.New()

	m, err := svc.Upload(ctx, service.UploadInput{UserID: owner, OriginalName: "a.png", MimeType: "image/png", Body: strings.NewReader("a")})
	require.NoError(t, err)

	ev := event(t, domain.TopicPostDeleted, domain.PostDeleted{PostID: uuid.New(), UserID: owner, MediaIDs: []string{m.ID.String()}})
	require.NoError(t, svc.HandlePostDeleted(ctx, ev))
	assert.False(t, repo.has(m.ID))
	assert.False(t, store.has(m.PublicID))

	// Redelivery finds nothing left to do.
	require.NoError(t, svc.HandlePostDeleted(ctx, ev))

	failing, err := svc.Upload(ctx, service.UploadInput{UserID: owner, OriginalName: "b.png", MimeType: "image/png", Body: strings.NewReader("b")})
	require.NoError(t, err)
	store.failOn[failing.PublicID] = errBoom
	err = svc.HandlePostDeleted(ctx, event(t, domain.TopicPostDeleted, domain.PostDeleted{PostID: uuid.New(), UserID: owner, MediaIDs: []string{failing.ID.String()}}))
	assert.ErrorIs(t, err, errBoom)
}

func TestMediaService_CascadeLeavesOtherUsersMedia(t *testing.T) {
	svc, repo, store := newMediaService()
	ctx := context.Background()
	alice, mallory := uuid.New(), uuid.New()

	alicesMedia, err := svc.Upload(ctx, service.UploadInput{UserID: alice, OriginalName: "alice.png", MimeType: "image/png", Body: strings.NewReader("a")})
	require.NoError(t, err)
	mallorysMedia, err := svc.Upload(ctx, service.UploadInput{UserID: mallory, OriginalName: "mallory.png", MimeType: "image/png", Body: strings.NewReader("m")})
	require.NoError(t, err)

	report := svc.CascadeDelete(ctx, domain.PostDeleted{
		PostID:   uuid.New(),
		UserID:   mallory,
		MediaIDs: []string{alicesMedia.ID.String(), mallorysMedia.ID.String()},
	})

	assert.NoError(t, report.Err())
	assert.Equal(t, []string{mallorysMedia.ID.String()}, report.Deleted)
	assert.Equal(t, []string{alicesMedia.ID.String()}, report.Skipped)
	assert.True(t, repo.has(alicesMedia.ID))
	assert.True(t, store.has(alicesMedia.PublicID))
	assert.False(t, repo.has(mallorysMedia.ID))
}
