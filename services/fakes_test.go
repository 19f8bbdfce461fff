package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sort"
	"sync"
	"testing"
	"time"

	"captiongram/models"
	"captiongram/repository"
	"captiongram/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// testImage возвращает PNG с шумом, чтобы JPEG-кодек не сжал его до нуля
func testImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8((x * y) % 251), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeRepo struct {
	mu        sync.Mutex
	posts     map[string]models.Post
	createErr error
	findErr   error
	updateErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{posts: make(map[string]models.Post)}
}

func (r *fakeRepo) Create(ctx context.Context, post *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	post.ID = uuid.NewString()
	post.CreatedAt = time.Now().UTC()
	post.UpdatedAt = post.CreatedAt
	r.posts[post.ID] = *post
	return nil
}

func (r *fakeRepo) FindByID(ctx context.Context, id string) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	p, ok := r.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *fakeRepo) UpdateCaption(ctx context.Context, id string, caption string) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	p, ok := r.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p.Caption = caption
	p.UpdatedAt = time.Now().UTC()
	r.posts[id] = p
	return &p, nil
}

func (r *fakeRepo) ListByOwner(ctx context.Context, ownerID int64, after *repository.Cursor, limit int) ([]models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Post, 0)
	for _, p := range r.posts {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.posts)), nil
}

type fakeCaptioner struct {
	mu       sync.Mutex
	captions []string
	err      error
	block    bool
	calls    int
	images   []string
	mimes    []string
}

func (c *fakeCaptioner) GenerateCaption(ctx context.Context, imageBase64, mimeType string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.images = append(c.images, imageBase64)
	c.mimes = append(c.mimes, mimeType)
	c.mu.Unlock()

	if c.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if c.err != nil {
		return "", c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.captions) == 0 {
		return "Golden hour glow ✨ #sunset", nil
	}
	caption := c.captions[0]
	if len(c.captions) > 1 {
		c.captions = c.captions[1:]
	}
	return caption, nil
}

func (c *fakeCaptioner) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeStore хранит объекты в памяти и заодно отдает их по URL как ImageFetcher
type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	folders   map[string]string
	uploads   int
	deletes   int
	uploadErr error
	deleteErr error
	fetchErr  error
	// Загрузка и скачивание зависают до отмены контекста
	uploadBlock bool
	fetchBlock  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte), folders: make(map[string]string)}
}

func (s *fakeStore) Upload(ctx context.Context, data []byte, key, folder string) (*storage.Object, error) {
	s.mu.Lock()
	s.uploads++
	block := s.uploadBlock
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	url := "https://ik.example.test/" + folder + "/" + key
	s.objects[url] = append([]byte(nil), data...)
	s.folders[url] = folder
	return &storage.Object{URL: url, FileID: "file_" + key, Key: key, Folder: folder}, nil
}

func (s *fakeStore) Delete(ctx context.Context, obj storage.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, obj.URL)
	return nil
}

func (s *fakeStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	block := s.fetchBlock
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	data, ok := s.objects[url]
	if !ok {
		return nil, errors.New("unexpected status 404")
	}
	return data, nil
}

func (s *fakeStore) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

func (s *fakeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *fakeStore) Object(url string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[url]
	return data, ok
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []PostEvent
}

func (p *fakePublisher) Publish(ctx context.Context, event PostEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) Events() []PostEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PostEvent(nil), p.events...)
}
