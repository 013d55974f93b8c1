// Package providers implements the content provider contracts over the
// external generation and recommendation services.
package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
)

const imageProviderName = "openai-images"

type OpenAIImageConfig struct {
	APIKey  string `envconfig:"API_KEY" split_words:"true"`
	BaseURL string `envconfig:"BASE_URL" split_words:"true"`
	Model   string `envconfig:"MODEL" split_words:"true" default:"dall-e-3"`
}

// OpenAIImageProvider generates inspiration images through the OpenAI
// images API.
type OpenAIImageProvider struct {
	client *openaisdk.Client
	model  string
}

var _ contractx.ImageProvider = (*OpenAIImageProvider)(nil)

func NewOpenAIImageProvider(cfg OpenAIImageConfig) (*OpenAIImageProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: image api key is required", contractx.ErrValidation)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}

	client := openaisdk.NewClient(opts...)
	return &OpenAIImageProvider{
		client: &client,
		model:  strings.TrimSpace(cfg.Model),
	}, nil
}

func (p *OpenAIImageProvider) Generate(ctx context.Context, prompt string, count int) ([]contractx.ImageItem, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &contractx.ProviderError{
			Provider: imageProviderName, Kind: contractx.KindImage,
			Reason: "empty prompt", Retryable: false,
		}
	}
	if count <= 0 {
		count = 1
	}
	// DALL-E 3 renders one image per request.
	if p.model == string(openaisdk.ImageModelDallE3) && count > 1 {
		count = 1
	}

	resp, err := p.client.Images.Generate(ctx, openaisdk.ImageGenerateParams{
		Prompt: prompt,
		Model:  openaisdk.ImageModel(p.model),
		N:      openaisdk.Int(int64(count)),
		Size:   openaisdk.ImageGenerateParamsSize1024x1024,
	})
	if err != nil {
		return nil, &contractx.ProviderError{
			Provider: imageProviderName, Kind: contractx.KindImage,
			Reason: "generation failed", Retryable: true, Err: err,
		}
	}

	items := make([]contractx.ImageItem, 0, len(resp.Data))
	for i, img := range resp.Data {
		url := img.URL
		if url == "" {
			continue
		}
		items = append(items, contractx.ImageItem{
			ID:         uuid.NewString(),
			URL:        url,
			Prompt:     prompt,
			Provider:   imageProviderName,
			Confidence: 1 - float64(i)*0.05,
		})
	}
	if len(items) == 0 {
		return nil, &contractx.ProviderError{
			Provider: imageProviderName, Kind: contractx.KindImage,
			Reason: "no images returned", Retryable: true,
		}
	}
	return items, nil
}
