package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dom/social-backend/internal/domain"
	"github.com/dom/social-backend/internal/repository/postgres"
	"github.com/dom/social-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newToken(userID uuid.UUID, token string, expiresIn time.Duration) *domain.RefreshToken {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.RefreshToken{
		ID:        uuid.New(),
		Token:     token,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(expiresIn),
	}
}

func TestRefreshTokenRepository_Consume(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewRefreshTokenRepository(testDB.DB)
	ctx := context.Background()
	user, _ := testutil.NewUserBuilder().Build(t, testDB.DB)

	record := newToken(user.ID, "consume-me", time.Hour)
	require.NoError(t, repo.Create(ctx, record))

	got, err := repo.Consume(ctx, "consume-me")
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, user.ID, got.UserID)
	assert.WithinDuration(t, record.ExpiresAt, got.ExpiresAt, time.Millisecond)

	_, err = repo.Consume(ctx, "consume-me")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.GetByToken(ctx, "consume-me")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRefreshTokenRepository_ConsumeConcurrently(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewRefreshTokenRepository(testDB.DB)
	ctx := context.Background()
	user, _ := testutil.NewUserBuilder().Build(t, testDB.DB)

	require.NoError(t, repo.Create(ctx, newToken(user.ID, "contended", time.Hour)))

	const callers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		start = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.Consume(ctx, "contended")
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestRefreshTokenRepository_Deletes(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewRefreshTokenRepository(testDB.DB)
	ctx := context.Background()

	t.Run("delete by token", func(t *testing.T) {
		testDB.Truncate(t)
		user, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
		require.NoError(t, repo.Create(ctx, newToken(user.ID, "t1", time.Hour)))

		existed, err := repo.DeleteByToken(ctx, "t1")
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = repo.DeleteByToken(ctx, "t1")
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("delete by id", func(t *testing.T) {
		testDB.Truncate(t)
		user, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
		record := newToken(user.ID, "t2", time.Hour)
		require.NoError(t, repo.Create(ctx, record))

		require.NoError(t, repo.DeleteByID(ctx, record.ID))
		_, err := repo.GetByToken(ctx, "t2")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("delete by user", func(t *testing.T) {
		testDB.Truncate(t)
		user, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
		other, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
		require.NoError(t, repo.Create(ctx, newToken(user.ID, "a", time.Hour)))
		require.NoError(t, repo.Create(ctx, newToken(user.ID, "b", time.Hour)))
		require.NoError(t, repo.Create(ctx, newToken(other.ID, "c", time.Hour)))

		n, err := repo.DeleteByUserID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		_, err = repo.GetByToken(ctx, "c")
		assert.NoError(t, err)
	})

	t.Run("delete expired", func(t *testing.T) {
		testDB.Truncate(t)
		user, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
		require.NoError(t, repo.Create(ctx, newToken(user.ID, "old", -time.Hour)))
		require.NoError(t, repo.Create(ctx, newToken(user.ID, "new", time.Hour)))

		n, err := repo.DeleteExpired(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.GetByToken(ctx, "new")
		assert.NoError(t, err)
	})
}
