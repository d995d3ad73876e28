package handlers

import (
	"context"
	"net/http"

	"asset-orchestrator/core/generation"

	"github.com/rs/zerolog"
)

// ImageGenerator produces and stores one image per call.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, assetName string) (*generation.Result, error)
}

// ImageHandler handles image generation requests.
type ImageHandler struct {
	generator ImageGenerator
	logger    zerolog.Logger
}

// NewImageHandler creates a new image handler
func NewImageHandler(generator ImageGenerator, logger zerolog.Logger) *ImageHandler {
	return &ImageHandler{
		generator: generator,
		logger:    logger.With().Str("handler", "images").Logger(),
	}
}

// GenerateImageRequest is the body of POST /v1/images.
type GenerateImageRequest struct {
	Prompt    string `json:"prompt"`
	AssetName string `json:"assetName,omitempty"`
}

// GenerateImageResponse also carries imageUrl, the field earlier clients read.
type GenerateImageResponse struct {
	ArtifactURI          string `json:"artifactUri"`
	URL                  string `json:"url"`
	ImageURL             string `json:"imageUrl"`
	ProcessedArtifactURI string `json:"processedArtifactUri,omitempty"`
}

// GenerateImage handles POST /v1/images
func (h *ImageHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req GenerateImageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.generator.Generate(r.Context(), req.Prompt, req.AssetName)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, GenerateImageResponse{
		ArtifactURI:          result.ArtifactURI.String(),
		URL:                  result.URL,
		ImageURL:             result.URL,
		ProcessedArtifactURI: result.ProcessedURI,
	})
}
