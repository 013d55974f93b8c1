package providers

import (
	"context"
	"strings"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	qloox "github.com/tiles-ai/tiles-planner/pkg/qloo"
)

const qlooProviderName = "qloo"

// QlooMusicProvider recommends artists matching the event mood via the Qloo
// insights API.
type QlooMusicProvider struct {
	client *qloox.Client
}

var _ contractx.MusicProvider = (*QlooMusicProvider)(nil)

func NewQlooMusicProvider(client *qloox.Client) *QlooMusicProvider {
	return &QlooMusicProvider{client: client}
}

func (p *QlooMusicProvider) Recommend(ctx context.Context, signals contractx.MusicSignals) ([]contractx.MusicItem, error) {
	query := musicQuery(signals)
	entities, err := p.client.Insights(ctx, "urn:entity:artist", query, "", 10)
	if err != nil {
		return nil, &contractx.ProviderError{
			Provider: qlooProviderName, Kind: contractx.KindMusic,
			Reason: "recommendation failed", Retryable: true, Err: err,
		}
	}

	items := make([]contractx.MusicItem, 0, len(entities))
	for _, e := range entities {
		if e.Name == "" {
			continue
		}
		items = append(items, contractx.MusicItem{
			ID:         e.ID,
			Title:      e.Name,
			Artist:     e.Name,
			Genre:      stringProperty(e.Properties, "genre"),
			Provider:   qlooProviderName,
			MatchScore: clamp01(e.Popularity),
		})
	}
	return items, nil
}

func musicQuery(signals contractx.MusicSignals) string {
	parts := make([]string, 0, 3)
	if signals.EventType != "" {
		parts = append(parts, signals.EventType+" music")
	}
	for i, tag := range signals.StyleTags {
		if i >= 2 {
			break
		}
		parts = append(parts, tag)
	}
	if len(parts) == 0 {
		return "party music"
	}
	return strings.Join(parts, " ")
}

func stringProperty(props map[string]any, key string) string {
	if props == nil {
		return ""
	}
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
