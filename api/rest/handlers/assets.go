package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"asset-orchestrator/core/models"
	"asset-orchestrator/core/repository"
	"asset-orchestrator/storage"

	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// CatalogLister pages through the asset catalog.
type CatalogLister interface {
	ListItems(ctx context.Context, limit int, cursor string) (*models.CatalogPage, error)
}

// URLProvider issues signed read URLs for artifacts.
type URLProvider interface {
	GetURL(ctx context.Context, uri storage.ArtifactURI) (string, error)
}

// AssetHandler serves the pre-built asset catalog with signed URLs.
type AssetHandler struct {
	catalog CatalogLister
	urls    URLProvider
	bucket  string
	logger  zerolog.Logger
}

// NewAssetHandler creates a new asset handler. bucket holds the catalog objects.
func NewAssetHandler(catalog CatalogLister, urls URLProvider, bucket string, logger zerolog.Logger) *AssetHandler {
	return &AssetHandler{
		catalog: catalog,
		urls:    urls,
		bucket:  bucket,
		logger:  logger.With().Str("handler", "assets").Logger(),
	}
}

// ListAssetsResponse is one catalog page; LastKey is null on the last page.
type ListAssetsResponse struct {
	Items   []models.CatalogItem `json:"items"`
	LastKey *string              `json:"lastKey"`
}

// ListAssets handles GET /v1/assets
func (h *AssetHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	const op = "list assets"

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, h.logger, models.Validation(op, errors.New("limit must be a positive integer")))
			return
		}
		limit = min(n, maxPageSize)
	}

	page, err := h.catalog.ListItems(r.Context(), limit, r.URL.Query().Get("lastKey"))
	if errors.Is(err, repository.ErrInvalidCursor) {
		writeError(w, r, h.logger, models.Validation(op, err))
		return
	}
	if err != nil {
		writeError(w, r, h.logger, models.Upstream(op, err))
		return
	}

	for i := range page.Items {
		item := &page.Items[i]
		for _, field := range []*string{&item.ModelPath, &item.PosterPath, &item.IOSModelPath} {
			if *field == "" {
				continue
			}
			signed, err := h.sign(r.Context(), *field)
			if err != nil {
				writeError(w, r, h.logger, err)
				return
			}
			*field = signed
		}
	}

	resp := ListAssetsResponse{Items: page.Items}
	if page.LastKey != "" {
		resp.LastKey = &page.LastKey
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AssetHandler) sign(ctx context.Context, location string) (string, error) {
	key, err := storage.KeyFromLocation(location)
	if err != nil {
		return "", models.Internal("sign asset", err)
	}
	url, err := h.urls.GetURL(ctx, storage.ArtifactURI{Bucket: h.bucket, Key: key})
	if err != nil {
		return "", models.Upstream("sign asset", err)
	}
	return url, nil
}
