package service_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dom/social-backend/internal/domain"
	"github.com/google/uuid"
)

var errBoom = errors.New("boom")

type fakeCache struct {
	mu        sync.Mutex
	data      map[string][]byte
	deleteErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) DeleteByPrefix(_ context.Context, prefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return 0, c.deleteErr
	}
	var n int64
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
			n++
		}
	}
	return n, nil
}

func (c *fakeCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type published struct {
	topic   string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{topic: topic, payload: payload})
	return nil
}

func (p *fakePublisher) sent() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

type fakePostRepo struct {
	mu    sync.Mutex
	posts map[uuid.UUID]*domain.Post
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{posts: make(map[uuid.UUID]*domain.Post)}
}

func (r *fakePostRepo) Create(_ context.Context, post *domain.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *post
	r.posts[post.ID] = &cp
	return nil
}

func (r *fakePostRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePostRepo) List(_ context.Context, offset, limit int) ([]*domain.Post, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*domain.Post, 0, len(r.posts))
	for _, p := range r.posts {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if offset >= len(all) {
		return []*domain.Post{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *fakePostRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.posts[id]
	delete(r.posts, id)
	return ok, nil
}

type fakeSearchRepo struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*domain.SearchDocument
}

func newFakeSearchRepo() *fakeSearchRepo {
	return &fakeSearchRepo{docs: make(map[uuid.UUID]*domain.SearchDocument)}
}

func (r *fakeSearchRepo) Upsert(_ context.Context, doc *domain.SearchDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	r.docs[doc.PostID] = &cp
	return nil
}

func (r *fakeSearchRepo) GetByPostID(_ context.Context, id uuid.UUID) (*domain.SearchDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (r *fakeSearchRepo) DeleteByPostID(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.docs[id]
	delete(r.docs, id)
	return ok, nil
}

func (r *fakeSearchRepo) Search(_ context.Context, query string, limit int) ([]*domain.SearchDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SearchDocument
	for _, d := range r.docs {
		if strings.Contains(strings.ToLower(d.Content), strings.ToLower(query)) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeSearchRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

type fakeMediaRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.Media
}

func newFakeMediaRepo() *fakeMediaRepo {
	return &fakeMediaRepo{items: make(map[uuid.UUID]*domain.Media)}
}

func (r *fakeMediaRepo) Create(_ context.Context, m *domain.Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.items[m.ID] = &cp
	return nil
}

func (r *fakeMediaRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMediaRepo) ListByUserID(_ context.Context, userID uuid.UUID) ([]*domain.Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Media
	for _, m := range r.items {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMediaRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[id]
	delete(r.items, id)
	return ok, nil
}

func (r *fakeMediaRepo) has(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[id]
	return ok
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte), failOn: make(map[string]error)}
}

func (s *fakeStore) Put(_ context.Context, originalName string, r io.Reader) (string, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString() + "-" + originalName
	s.objects[id] = data
	return id, "http://media.test/" + id, nil
}

func (s *fakeStore) Delete(_ context.Context, publicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[publicID]; err != nil {
		return err
	}
	delete(s.objects, publicID)
	return nil
}

func (s *fakeStore) has(publicID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[publicID]
	return ok
}
