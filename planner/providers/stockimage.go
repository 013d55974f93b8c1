package providers

import (
	"context"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	unsplashx "github.com/tiles-ai/tiles-planner/pkg/unsplash"
)

const unsplashProviderName = "unsplash"

// UnsplashImageProvider serves curated stock photos instead of generated
// images. Used when no generation backend is configured.
type UnsplashImageProvider struct {
	client *unsplashx.Client
}

var _ contractx.ImageProvider = (*UnsplashImageProvider)(nil)

func NewUnsplashImageProvider(client *unsplashx.Client) *UnsplashImageProvider {
	return &UnsplashImageProvider{client: client}
}

func (p *UnsplashImageProvider) Generate(ctx context.Context, prompt string, count int) ([]contractx.ImageItem, error) {
	photos, err := p.client.Search(ctx, unsplashx.QueryForPrompt(prompt), count)
	if err != nil {
		return nil, &contractx.ProviderError{
			Provider: unsplashProviderName, Kind: contractx.KindImage,
			Reason: "photo search failed", Retryable: true, Err: err,
		}
	}

	items := make([]contractx.ImageItem, 0, len(photos))
	for i, photo := range photos {
		if photo.URLs.Regular == "" {
			continue
		}
		items = append(items, contractx.ImageItem{
			ID:         photo.ID,
			URL:        photo.URLs.Regular,
			ThumbURL:   photo.URLs.Thumb,
			Prompt:     prompt,
			Provider:   unsplashProviderName,
			Confidence: 0.8 - float64(i)*0.02,
		})
	}
	if len(items) == 0 {
		return nil, &contractx.ProviderError{
			Provider: unsplashProviderName, Kind: contractx.KindImage,
			Reason: "no photos found", Retryable: false,
		}
	}
	return items, nil
}
