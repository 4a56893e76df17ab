package photo

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-user-accounts/config"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Put(_ context.Context, key, _ string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

func (m *memStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, "", types.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), contentTypeJPEG, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

type memRepo struct {
	keys map[uuid.UUID]string
}

func (r *memRepo) GetUserData(_ context.Context, id uuid.UUID) (*types.UserData, error) {
	k := r.keys[id]
	return &types.UserData{UserID: id, ProfilePhotoKey: k, HasProfilePhoto: k != ""}, nil
}

func (r *memRepo) SetProfilePhotoKey(_ context.Context, id uuid.UUID, key string) (string, error) {
	prev := r.keys[id]
	r.keys[id] = key
	return prev, nil
}

type emailFinder map[string]*types.User

func (f emailFinder) GetUserByEmail(_ context.Context, email string) (*types.User, error) {
	if u, ok := f[email]; ok {
		return u, nil
	}
	return nil, types.ErrNotFound
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestService(users emailFinder) (*PhotoServiceImpl, *memRepo, *memStore) {
	repo := &memRepo{keys: map[uuid.UUID]string{}}
	store := newMemStore()
	cfg := config.PhotosConfig{MaxBytes: 1 << 20, MaxDimension: 256}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPhotoService(repo, users, store, cfg, logger), repo, store
}

func TestPhotoService_Upload(t *testing.T) {
	ctx := context.Background()
	user := &types.User{ID: uuid.New()}

	t.Run("resized and stored as jpeg", func(t *testing.T) {
		svc, repo, store := newTestService(nil)

		data, err := svc.Upload(ctx, user, bytes.NewReader(pngBytes(t, 1000, 500)))
		require.NoError(t, err)
		assert.True(t, data.HasProfilePhoto)

		key := repo.keys[user.ID]
		assert.True(t, strings.HasPrefix(key, "profile-photos/"+user.ID.String()+"/"))
		assert.True(t, strings.HasSuffix(key, ".jpg"))

		cfg, format, err := image.DecodeConfig(bytes.NewReader(store.objects[key]))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 256, cfg.Width)
		assert.Equal(t, 128, cfg.Height)
	})

	t.Run("replacing deletes the previous object", func(t *testing.T) {
		svc, repo, store := newTestService(nil)

		_, err := svc.Upload(ctx, user, bytes.NewReader(pngBytes(t, 10, 10)))
		require.NoError(t, err)
		first := repo.keys[user.ID]

		_, err = svc.Upload(ctx, user, bytes.NewReader(pngBytes(t, 10, 10)))
		require.NoError(t, err)

		assert.NotEqual(t, first, repo.keys[user.ID])
		assert.Contains(t, store.deleted, first)
		assert.Len(t, store.objects, 1)
	})

	t.Run("too large", func(t *testing.T) {
		svc, _, store := newTestService(nil)
		svc.cfg.MaxBytes = 10

		_, err := svc.Upload(ctx, user, bytes.NewReader(pngBytes(t, 10, 10)))
		var ve *types.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Contains(t, ve.Fields, "file")
		assert.Empty(t, store.objects)
	})

	t.Run("not an image", func(t *testing.T) {
		svc, _, _ := newTestService(nil)

		_, err := svc.Upload(ctx, user, strings.NewReader("definitely not a picture"))
		assert.ErrorIs(t, err, types.ErrValidation)
	})
}

func TestPhotoService_DeleteAndGet(t *testing.T) {
	ctx := context.Background()
	user := &types.User{ID: uuid.New(), Email: "a@x.com"}
	svc, _, store := newTestService(emailFinder{"a@x.com": user})

	_, err := svc.Get(ctx, user)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = svc.Upload(ctx, user, bytes.NewReader(pngBytes(t, 20, 20)))
	require.NoError(t, err)

	photo, err := svc.GetByEmail(ctx, " A@X.com ")
	require.NoError(t, err)
	assert.Equal(t, contentTypeJPEG, photo.ContentType)
	require.NoError(t, photo.Body.Close())

	require.NoError(t, svc.Delete(ctx, user))
	assert.Empty(t, store.objects)
	require.NoError(t, svc.Delete(ctx, user), "deleting twice is fine")

	_, err = svc.Get(ctx, user)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = svc.GetByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
