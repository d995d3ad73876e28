package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"asset-orchestrator/api/rest/handlers"
	"asset-orchestrator/core/generation"
	"asset-orchestrator/core/models"
	"asset-orchestrator/core/pipeline"
	"asset-orchestrator/core/repository"
	awsprovider "asset-orchestrator/providers/aws"
	"asset-orchestrator/storage"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	inputs []string
	err    error
}

func (f *fakeSubmitter) Submit(_ context.Context, input string) (string, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return "", f.err
	}
	return "cmd-1", nil
}

type fakeStatus struct {
	requests []pipeline.StatusRequest
	result   *pipeline.StatusResult
	err      error
}

func (f *fakeStatus) CheckStatus(_ context.Context, req pipeline.StatusRequest) (*pipeline.StatusResult, error) {
	f.requests = append(f.requests, req)
	return f.result, f.err
}

// countingBackend feeds the real generation service.
type countingBackend struct{ calls int }

func (b *countingBackend) TextToImage(context.Context, generation.ImageRequest) ([]byte, error) {
	b.calls++
	return []byte("png"), nil
}

func (b *countingBackend) RemoveBackground(_ context.Context, image []byte) ([]byte, error) {
	return image, nil
}

type memoryStore struct{}

func (memoryStore) Put(_ context.Context, key, _ string, _ []byte) (storage.ArtifactURI, error) {
	return storage.ArtifactURI{Bucket: "assets", Key: key}, nil
}

func (memoryStore) Presign(_ context.Context, uri storage.ArtifactURI, _ time.Duration) (string, error) {
	return "https://signed/" + uri.Key, nil
}

type fakeCatalog struct {
	page   *models.CatalogPage
	err    error
	limits []int
}

func (f *fakeCatalog) ListItems(_ context.Context, limit int, _ string) (*models.CatalogPage, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	items := append([]models.CatalogItem(nil), f.page.Items...)
	return &models.CatalogPage{Items: items, LastKey: f.page.LastKey}, nil
}

type countingSigner struct{ calls int }

func (s *countingSigner) Presign(_ context.Context, uri storage.ArtifactURI, _ time.Duration) (string, error) {
	s.calls++
	return "https://" + uri.Bucket + "/" + uri.Key + "?sig", nil
}

type fakeTargets struct {
	health []awsprovider.TargetHealth
	err    error
}

func (f *fakeTargets) Check(context.Context) ([]awsprovider.TargetHealth, error) {
	return f.health, f.err
}

type testServer struct {
	handler   http.Handler
	submitter *fakeSubmitter
	status    *fakeStatus
	backend   *countingBackend
	catalog   *fakeCatalog
	signer    *countingSigner
	targets   *fakeTargets
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()

	s := &testServer{
		submitter: &fakeSubmitter{},
		status:    &fakeStatus{},
		backend:   &countingBackend{},
		catalog: &fakeCatalog{page: &models.CatalogPage{
			Items: []models.CatalogItem{{
				ID:           "chair",
				Name:         "Chair",
				Price:        129.5,
				Category:     "furniture",
				ModelPath:    "https://catalog.s3.us-west-2.amazonaws.com/public/models/chair.glb",
				PosterPath:   "public/posters/chair.webp",
				IOSModelPath: "s3://catalog/public/models/chair.usdz",
			}},
			LastKey: "next",
		}},
		signer:  &countingSigner{},
		targets: &fakeTargets{},
	}

	cache, err := storage.NewPresignCache(s.signer, storage.CacheOptions{})
	require.NoError(t, err)

	s.handler = NewHandler(Handlers{
		Jobs:   handlers.NewJobHandler(s.submitter, s.status, logger),
		Images: handlers.NewImageHandler(generation.NewService(s.backend, memoryStore{}, generation.Options{}, logger), logger),
		Assets: handlers.NewAssetHandler(s.catalog, cache, "catalog", logger),
		Health: handlers.NewHealthHandler(s.targets, logger),
	}, logger)
	return s
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSubmitJob(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/v1/jobs", `{"sourceArtifactUri":"s3://bucket/in.png"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"commandId":"cmd-1"}`, rec.Body.String())

	rec = s.do(http.MethodPost, "/create-3d-job", `{"s3uri":"s3://bucket/legacy.png"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s3://bucket/in.png", "s3://bucket/legacy.png"}, s.submitter.inputs)
}

func TestSubmitJob_ValidationAndUpstreamErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/v1/jobs", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", decode(t, rec)["error"])

	rec = s.do(http.MethodPost, "/v1/jobs", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.submitter.inputs)

	s.submitter.err = models.Upstream("submit", errors.New("InvalidInstanceId"))
	rec = s.do(http.MethodPost, "/v1/jobs", `{"sourceArtifactUri":"s3://bucket/in.png"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "InvalidInstanceId", decode(t, rec)["error"])

	s.submitter.err = models.Internal("submit", errors.New("secret detail"))
	rec = s.do(http.MethodPost, "/v1/jobs", `{"sourceArtifactUri":"s3://bucket/in.png"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error", decode(t, rec)["error"])
}

func TestCheckJobStatus_NonSuccess(t *testing.T) {
	s := newTestServer(t)
	s.status.result = &pipeline.StatusResult{Status: models.CommandInProgress}

	rec := s.do(http.MethodPost, "/v1/jobs/status", `{"commandId":"cmd-1","modelName":"Chair"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "InProgress", body["status"])
	assert.NotEmpty(t, body["message"])
	assert.NotContains(t, body, "primaryUrl")
	assert.Equal(t, pipeline.StatusRequest{CommandID: "cmd-1", ModelName: "Chair"}, s.status.requests[0])
}

func TestCheckJobStatus_Success(t *testing.T) {
	s := newTestServer(t)
	s.status.result = &pipeline.StatusResult{
		Status:               models.CommandSuccess,
		Stage:                models.Stage2Done,
		ModelID:              "abc",
		PrimaryArtifactURI:   "s3://assets/generated-3d-assets/abc.glb",
		PrimaryURL:           "https://signed/abc.glb",
		SecondaryArtifactURI: "s3://assets/generated-3d-assets/abc.usdz",
		SecondaryURL:         "https://signed/abc.usdz",
		SecondaryStatus:      models.CommandSuccess,
	}

	rec := s.do(http.MethodPost, "/check-3d-job", `{"commandId":"cmd-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"status": "Success",
		"stage": "stage2_done",
		"modelId": "abc",
		"primaryArtifactUri": "s3://assets/generated-3d-assets/abc.glb",
		"primaryUrl": "https://signed/abc.glb",
		"secondaryArtifactUri": "s3://assets/generated-3d-assets/abc.usdz",
		"secondaryUrl": "https://signed/abc.usdz",
		"secondaryStatus": "Success"
	}`, rec.Body.String())
}

func TestCheckJobStatus_RecordNotFound(t *testing.T) {
	s := newTestServer(t)
	s.status.err = models.NotFound("check status", models.ErrRecordMissing)

	rec := s.do(http.MethodPost, "/v1/jobs/status", `{"commandId":"cmd-unknown"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"status":"Success","message":"record not found"}`, rec.Body.String())
}

func TestGenerateImage(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/v1/images", `{"prompt":"a red chair","assetName":"Red Chair"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.True(t, strings.HasPrefix(body["artifactUri"].(string), "s3://assets/generated-assets/red-chair-"))
	assert.Equal(t, body["url"], body["imageUrl"])
	assert.Equal(t, 1, s.backend.calls)
}

func TestGenerateImage_MissingPrompt(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/text-to-image", `{"prompt":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing prompt", decode(t, rec)["error"])
	assert.Equal(t, 0, s.backend.calls)
}

func TestPreflight(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/v1/images", "/text-to-image", "/v1/jobs"} {
		rec := s.do(http.MethodOptions, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Body.String(), path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), path)
	}

	req := httptest.NewRequest(http.MethodOptions, "/v1/images", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Zero(t, s.backend.calls)
}

func TestCORSHeadersOnResponses(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{"sourceArtifactUri":"s3://b/k.png"}`))
	req.Header.Set("Origin", "https://shop.example.com")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSHeadersWithoutOrigin(t *testing.T) {
	s := newTestServer(t)

	for _, rec := range []*httptest.ResponseRecorder{
		s.do(http.MethodPost, "/v1/jobs", `{"sourceArtifactUri":"s3://b/k.png"}`),
		s.do(http.MethodPost, "/v1/jobs", `{}`),
		s.do(http.MethodGet, "/health", ""),
	} {
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "GET,POST,OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestListAssets(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/v1/assets?limit=500", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items   []models.CatalogItem `json:"items"`
		LastKey *string              `json:"lastKey"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "https://catalog/public/models/chair.glb?sig", body.Items[0].ModelPath)
	assert.Equal(t, "https://catalog/public/posters/chair.webp?sig", body.Items[0].PosterPath)
	assert.Equal(t, "https://catalog/public/models/chair.usdz?sig", body.Items[0].IOSModelPath)
	assert.Equal(t, 129.5, body.Items[0].Price)
	assert.Equal(t, "furniture", body.Items[0].Category)
	assert.Contains(t, rec.Body.String(), `"price":129.5`)
	require.NotNil(t, body.LastKey)
	assert.Equal(t, "next", *body.LastKey)
	assert.Equal(t, []int{100}, s.catalog.limits)
	assert.Equal(t, 3, s.signer.calls)

	rec = s.do(http.MethodGet, "/get-assets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, s.signer.calls, "signed URLs are reused within the cache TTL")
	assert.Equal(t, 10, s.catalog.limits[1])
}

func TestListAssets_BadInput(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/v1/assets?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.catalog.err = repository.ErrInvalidCursor
	rec = s.do(http.MethodGet, "/v1/assets?lastKey=garbage", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.catalog.err = errors.New("ProvisionedThroughputExceeded")
	rec = s.do(http.MethodGet, "/v1/assets", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	s.targets.health = []awsprovider.TargetHealth{{InstanceID: "i-1", State: "running", Available: true}}

	rec := s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	s.targets.health = append(s.targets.health, awsprovider.TargetHealth{InstanceID: "i-2", State: "stopped"})
	rec = s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["unavailable"], 1)
}
