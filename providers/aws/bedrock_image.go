package aws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"asset-orchestrator/core/generation"
	"asset-orchestrator/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// DefaultImageModel is Amazon Nova Canvas.
const DefaultImageModel = "amazon.nova-canvas-v1:0"

// BedrockAPI is the subset of the Bedrock runtime client used for inference.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockImageBackend generates and edits images with a Nova Canvas model.
type BedrockImageBackend struct {
	client  BedrockAPI
	modelID string
}

var _ generation.ImageBackend = (*BedrockImageBackend)(nil)

// NewBedrockImageBackend creates an image backend for modelID, or DefaultImageModel when empty.
func NewBedrockImageBackend(client BedrockAPI, modelID string) *BedrockImageBackend {
	if modelID == "" {
		modelID = DefaultImageModel
	}
	return &BedrockImageBackend{client: client, modelID: modelID}
}

type textToImageParams struct {
	Text         string `json:"text"`
	NegativeText string `json:"negativeText,omitempty"`
}

type backgroundRemovalParams struct {
	Image string `json:"image"`
}

type imageGenerationConfig struct {
	Seed           int64  `json:"seed"`
	Quality        string `json:"quality"`
	Height         int    `json:"height"`
	Width          int    `json:"width"`
	NumberOfImages int    `json:"numberOfImages"`
}

type canvasRequest struct {
	TaskType                string                   `json:"taskType"`
	TextToImageParams       *textToImageParams       `json:"textToImageParams,omitempty"`
	BackgroundRemovalParams *backgroundRemovalParams `json:"backgroundRemovalParams,omitempty"`
	ImageGenerationConfig   *imageGenerationConfig   `json:"imageGenerationConfig,omitempty"`
}

type canvasResponse struct {
	Images []string `json:"images"`
	Error  string   `json:"error,omitempty"`
}

// TextToImage renders a single image for req.
func (b *BedrockImageBackend) TextToImage(ctx context.Context, req generation.ImageRequest) ([]byte, error) {
	return b.invoke(ctx, canvasRequest{
		TaskType: "TEXT_IMAGE",
		TextToImageParams: &textToImageParams{
			Text:         req.Prompt,
			NegativeText: req.NegativePrompt,
		},
		ImageGenerationConfig: &imageGenerationConfig{
			Seed:           req.Seed,
			Quality:        "standard",
			Height:         req.Height,
			Width:          req.Width,
			NumberOfImages: 1,
		},
	})
}

// RemoveBackground returns image with its background made transparent.
func (b *BedrockImageBackend) RemoveBackground(ctx context.Context, image []byte) ([]byte, error) {
	return b.invoke(ctx, canvasRequest{
		TaskType: "BACKGROUND_REMOVAL",
		BackgroundRemovalParams: &backgroundRemovalParams{
			Image: base64.StdEncoding.EncodeToString(image),
		},
	})
}

func (b *BedrockImageBackend) invoke(ctx context.Context, req canvasRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", req.TaskType, err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", b.modelID, err)
	}

	var resp canvasResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", b.modelID, err)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	if len(resp.Images) == 0 || resp.Images[0] == "" {
		return nil, models.ErrNoImage
	}

	image, err := base64.StdEncoding.DecodeString(resp.Images[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}
	return image, nil
}
