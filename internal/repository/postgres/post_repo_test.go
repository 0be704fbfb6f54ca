package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/dom/social-backend/internal/domain"
	"github.com/dom/social-backend/internal/repository/postgres"
	"github.com/dom/social-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRepository_CreateAndGet(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewPostRepository(testDB.DB)
	ctx := context.Background()

	post := testutil.NewPostBuilder().
		WithContent("with media").
		WithMedia("m1", "m2").
		Build(t, testDB.DB)

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "with media", got.Content)
	assert.Equal(t, []string{"m1", "m2"}, []string(got.MediaIDs))

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostRepository_List(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewPostRepository(testDB.DB)
	ctx := context.Background()

	author, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
	base := time.Now().UTC().Add(-time.Hour)
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		p := testutil.NewPostBuilder().WithAuthor(author).CreatedAt(base.Add(time.Duration(i)*time.Minute)).Build(t, testDB.DB)
		ids = append(ids, p.ID)
	}

	tests := []struct {
		name    string
		offset  int
		limit   int
		wantIDs []uuid.UUID
	}{
		{"first page newest first", 0, 2, []uuid.UUID{ids[4], ids[3]}},
		{"second page", 2, 2, []uuid.UUID{ids[2], ids[1]}},
		{"last partial page", 4, 2, []uuid.UUID{ids[0]}},
		{"past the end", 10, 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts, total, err := repo.List(ctx, tt.offset, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, int64(5), total)

			var got []uuid.UUID
			for _, p := range posts {
				got = append(got, p.ID)
			}
			assert.Equal(t, tt.wantIDs, got)
		})
	}
}

func TestPostRepository_Delete(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewPostRepository(testDB.DB)
	ctx := context.Background()

	post := testutil.NewPostBuilder().Build(t, testDB.DB)

	deleted, err := repo.Delete(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, post.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}
