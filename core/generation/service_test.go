package generation

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"asset-orchestrator/core/models"
	"asset-orchestrator/storage"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu          sync.Mutex
	image       []byte
	err         error
	removeErr   error
	requests    []ImageRequest
	removeCalls int
}

func (f *fakeBackend) TextToImage(_ context.Context, req ImageRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.image, f.err
}

func (f *fakeBackend) RemoveBackground(_ context.Context, image []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	if f.removeErr != nil {
		return nil, f.removeErr
	}
	return append([]byte("nobg:"), image...), nil
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Put(_ context.Context, key, _ string, data []byte) (storage.ArtifactURI, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return storage.ArtifactURI{}, m.putErr
	}
	m.objects[key] = data
	return storage.ArtifactURI{Bucket: "assets", Key: key}, nil
}

func (m *memoryStore) Presign(_ context.Context, uri storage.ArtifactURI, validity time.Duration) (string, error) {
	return "https://" + uri.Bucket + ".s3.amazonaws.com/" + uri.Key + "?X-Amz-Expires=" + validity.String(), nil
}

func newTestService(backend *fakeBackend, store *memoryStore, opts Options) *Service {
	svc := NewService(backend, store, opts, zerolog.Nop())
	svc.seed = func() int64 { return 42 }
	return svc
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Chair!!  2", "my-chair-2"},
		{"  Office   Chair ", "office-chair"},
		{"--a--b--", "a-b"},
		{"!!!", ""},
		{"", ""},
		{"Lamp\tShade\nDeluxe", "lamp-shade-deluxe"},
		{strings.Repeat("abc ", 20), "abc-abc-abc-abc-abc-abc-abc-abc"},
	}
	for _, tt := range tests {
		got := Sanitize(tt.in)
		assert.Equal(t, tt.want, got, "Sanitize(%q)", tt.in)
		assert.LessOrEqual(t, len(got), maxNameLength)
	}
}

func TestObjectName(t *testing.T) {
	pattern := regexp.MustCompile(`^my-chair-2-[a-z0-9]{8}\.png$`)

	a, err := ObjectName("My Chair!!  2", "png")
	require.NoError(t, err)
	b, err := ObjectName("My Chair!!  2", "png")
	require.NoError(t, err)

	assert.Regexp(t, pattern, a)
	assert.Regexp(t, pattern, b)
	assert.NotEqual(t, a, b)

	empty, err := ObjectName("???", "png")
	require.NoError(t, err)
	assert.Regexp(t, `^[a-z0-9]{8}\.png$`, empty)
}

func TestGenerate_StoresImageAndSignsURL(t *testing.T) {
	backend := &fakeBackend{image: []byte("png-bytes")}
	store := newMemoryStore()
	svc := newTestService(backend, store, Options{})

	res, err := svc.Generate(context.Background(), "a red office chair", "Office Chair")
	require.NoError(t, err)

	require.Len(t, backend.requests, 1)
	req := backend.requests[0]
	assert.Contains(t, req.Prompt, "Description: a red office chair")
	assert.Equal(t, negativePrompt, req.NegativePrompt)
	assert.Equal(t, DefaultWidth, req.Width)
	assert.Equal(t, DefaultHeight, req.Height)
	assert.Equal(t, int64(42), req.Seed)

	assert.True(t, strings.HasPrefix(res.ArtifactURI.Key, storage.PrefixGeneratedAssets+"office-chair-"))
	assert.Equal(t, []byte("png-bytes"), store.objects[res.ArtifactURI.Key])
	assert.Contains(t, res.URL, "/"+res.ArtifactURI.Key+"?")
	assert.Empty(t, res.ProcessedURI)
	assert.Equal(t, 0, backend.removeCalls)
}

func TestGenerate_MissingPromptMakesNoBackendCall(t *testing.T) {
	backend := &fakeBackend{image: []byte("png")}
	svc := newTestService(backend, newMemoryStore(), Options{})

	for _, prompt := range []string{"", "   "} {
		_, err := svc.Generate(context.Background(), prompt, "chair")
		require.Error(t, err)
		assert.Equal(t, models.KindValidation, models.KindOf(err))
		assert.ErrorIs(t, err, models.ErrMissingPrompt)
	}
	assert.Empty(t, backend.requests)
}

func TestGenerate_NoImageIsDistinctUpstreamError(t *testing.T) {
	for name, backend := range map[string]*fakeBackend{
		"empty payload":  {},
		"backend signal": {err: models.ErrNoImage},
	} {
		t.Run(name, func(t *testing.T) {
			store := newMemoryStore()
			svc := newTestService(backend, store, Options{})

			_, err := svc.Generate(context.Background(), "chair", "")
			require.Error(t, err)
			assert.Equal(t, models.KindUpstream, models.KindOf(err))
			assert.ErrorIs(t, err, models.ErrNoImage)
			assert.Empty(t, store.objects)
		})
	}
}

func TestGenerate_StoreFailureIsUpstream(t *testing.T) {
	store := newMemoryStore()
	store.putErr = errors.New("access denied")
	svc := newTestService(&fakeBackend{image: []byte("png")}, store, Options{})

	_, err := svc.Generate(context.Background(), "chair", "")
	assert.Equal(t, models.KindUpstream, models.KindOf(err))
}

func TestGenerate_RemovesBackgroundIntoProcessedPrefix(t *testing.T) {
	backend := &fakeBackend{image: []byte("png")}
	store := newMemoryStore()
	svc := newTestService(backend, store, Options{RemoveBackground: true})

	res, err := svc.Generate(context.Background(), "chair", "Chair")
	require.NoError(t, err)

	assert.Equal(t, 1, backend.removeCalls)
	processed, err := storage.ParseURI(res.ProcessedURI)
	require.NoError(t, err)
	assert.Equal(t, storage.PrefixProcessedAssets+res.ArtifactURI.Base(), processed.Key)
	assert.Equal(t, []byte("nobg:png"), store.objects[processed.Key])
	assert.True(t, strings.HasPrefix(res.ArtifactURI.Key, storage.PrefixGeneratedAssets))
}

func TestGenerate_BackgroundRemovalFailure(t *testing.T) {
	backend := &fakeBackend{image: []byte("png"), removeErr: errors.New("throttled")}
	svc := newTestService(backend, newMemoryStore(), Options{RemoveBackground: true})

	_, err := svc.Generate(context.Background(), "chair", "Chair")
	assert.Equal(t, models.KindUpstream, models.KindOf(err))
}
