package storage_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/dom/social-backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutOpenDelete(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), "http://localhost/media/")
	require.NoError(t, err)
	ctx := context.Background()

	publicID, url, err := store.Put(ctx, "Photo.JPG", strings.NewReader("pixels"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(publicID, ".jpg"))
	assert.Equal(t, "http://localhost/media/"+publicID, url)

	f, err := store.Open(publicID)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))

	require.NoError(t, store.Delete(ctx, publicID))
	// Second delete is a no-op.
	require.NoError(t, store.Delete(ctx, publicID))

	_, err = store.Open(publicID)
	assert.Error(t, err)
}

func TestLocalStore_RejectsPathTraversal(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), "http://localhost/media")
	require.NoError(t, err)

	for _, id := range []string{"", "../etc/passwd", "a/b", ".hidden"} {
		err := store.Delete(context.Background(), id)
		assert.ErrorIs(t, err, storage.ErrInvalidPublicID, id)
	}
}
