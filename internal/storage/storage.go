// Package storage holds binary media objects. Posts reference objects by the
// public id returned from Put.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type ObjectStore interface {
	Put(ctx context.Context, originalName string, r io.Reader) (publicID, url string, err error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, publicID string) error
}

var ErrInvalidPublicID = errors.New("invalid public id")

// LocalStore keeps objects as files in one directory and serves them under
// baseURL.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *LocalStore) Put(ctx context.Context, originalName string, r io.Reader) (string, string, error) {
	publicID := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))

	f, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: r}); err != nil {
		f.Close()
		return "", "", fmt.Errorf("write object: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(f.Name(), filepath.Join(s.dir, publicID)); err != nil {
		return "", "", fmt.Errorf("store object: %w", err)
	}

	return publicID, s.baseURL + "/" + publicID, nil
}

func (s *LocalStore) Delete(ctx context.Context, publicID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(publicID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object %s: %w", publicID, err)
	}
	return nil
}

// Open returns a reader for a stored object.
func (s *LocalStore) Open(publicID string) (*os.File, error) {
	path, err := s.path(publicID)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (s *LocalStore) path(publicID string) (string, error) {
	if publicID == "" || publicID != filepath.Base(publicID) || strings.HasPrefix(publicID, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPublicID, publicID)
	}
	return filepath.Join(s.dir, publicID), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
