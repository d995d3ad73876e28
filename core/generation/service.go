package generation

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"asset-orchestrator/core/models"
	"asset-orchestrator/storage"

	"github.com/rs/zerolog"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 720
	// MaxSeed is the largest seed the image model accepts.
	MaxSeed = 858993459
)

const promptTemplate = "Focus on retail products, but generate the item described below even if it is not retail. " +
	"Create a high-quality image of the described item, isolated on a fully transparent background. " +
	"No background, no scene, no environment, no people, no text, no watermark. " +
	"Show the item from a 3/4 (three-quarter) perspective, clearly showing the front, side, and top. " +
	"Ensure the entire item is fully visible in the image, with no cropping or cut-off edges. " +
	"Description: %s"

const negativePrompt = "background, scene, environment, people, text, watermark, logo, floor, table, surface, shadow, reflection"

// ImageRequest is one text-to-image inference call.
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Seed           int64
}

// ImageBackend is a synchronous image inference service.
// Implementations return models.ErrNoImage when the response carries no image.
type ImageBackend interface {
	TextToImage(ctx context.Context, req ImageRequest) ([]byte, error)
	RemoveBackground(ctx context.Context, image []byte) ([]byte, error)
}

// Options tunes generation. Zero values fall back to the package defaults.
type Options struct {
	RemoveBackground bool
	URLValidity      time.Duration
	Width            int
	Height           int
}

// Result references the stored image. ProcessedURI is empty unless
// background removal ran.
type Result struct {
	ArtifactURI  storage.ArtifactURI
	URL          string
	ProcessedURI string
}

// Service generates product images and stores them in the artifact store.
type Service struct {
	backend ImageBackend
	store   storage.ArtifactStore
	opts    Options
	logger  zerolog.Logger
	seed    func() int64
}

// NewService creates a new image generation service
func NewService(backend ImageBackend, store storage.ArtifactStore, opts Options, logger zerolog.Logger) *Service {
	if opts.Width == 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height == 0 {
		opts.Height = DefaultHeight
	}
	if opts.URLValidity <= 0 {
		opts.URLValidity = storage.DefaultURLValidity
	}
	return &Service{
		backend: backend,
		store:   store,
		opts:    opts,
		logger:  logger.With().Str("component", "generation").Logger(),
		seed:    func() int64 { return rand.Int63n(MaxSeed + 1) },
	}
}

// EnhancePrompt wraps a raw prompt with the product photography instructions.
func EnhancePrompt(prompt string) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(prompt))
}

// Generate makes one backend call for one image, uploads it under
// generated-assets/ and returns its URI with a signed URL.
func (s *Service) Generate(ctx context.Context, prompt, assetName string) (*Result, error) {
	const op = "generate"

	if strings.TrimSpace(prompt) == "" {
		return nil, models.Validation(op, models.ErrMissingPrompt)
	}

	name, err := ObjectName(strings.TrimSpace(assetName), "png")
	if err != nil {
		return nil, models.Internal(op, err)
	}

	image, err := s.backend.TextToImage(ctx, ImageRequest{
		Prompt:         EnhancePrompt(prompt),
		NegativePrompt: negativePrompt,
		Width:          s.opts.Width,
		Height:         s.opts.Height,
		Seed:           s.seed(),
	})
	if err == nil && len(image) == 0 {
		err = models.ErrNoImage
	}
	if err != nil {
		s.logger.Error().Err(err).Str("asset", name).Msg("image generation failed")
		return nil, models.Upstream(op, err)
	}

	uri, err := s.store.Put(ctx, storage.PrefixGeneratedAssets+name, "image/png", image)
	if err != nil {
		return nil, models.Upstream(op, fmt.Errorf("store image: %w", err))
	}

	result := &Result{ArtifactURI: uri}

	if s.opts.RemoveBackground {
		processed, err := s.removeBackground(ctx, image, name)
		if err != nil {
			return nil, err
		}
		result.ProcessedURI = processed.String()
	}

	result.URL, err = s.store.Presign(ctx, uri, s.opts.URLValidity)
	if err != nil {
		return nil, models.Upstream(op, fmt.Errorf("sign url: %w", err))
	}

	s.logger.Info().
		Str("artifact", uri.String()).
		Str("processed", result.ProcessedURI).
		Msg("image generated")

	return result, nil
}

func (s *Service) removeBackground(ctx context.Context, image []byte, name string) (storage.ArtifactURI, error) {
	const op = "remove background"

	processed, err := s.backend.RemoveBackground(ctx, image)
	if err == nil && len(processed) == 0 {
		err = models.ErrNoImage
	}
	if err != nil {
		s.logger.Error().Err(err).Str("asset", name).Msg("background removal failed")
		return storage.ArtifactURI{}, models.Upstream(op, err)
	}

	uri, err := s.store.Put(ctx, storage.PrefixProcessedAssets+name, "image/png", processed)
	if err != nil {
		return storage.ArtifactURI{}, models.Upstream(op, fmt.Errorf("store image: %w", err))
	}
	return uri, nil
}
