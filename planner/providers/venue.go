package providers

import (
	"context"
	"strings"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	qloox "github.com/tiles-ai/tiles-planner/pkg/qloo"
)

// QlooVenueProvider recommends venues near the event location.
type QlooVenueProvider struct {
	client *qloox.Client
}

var _ contractx.VenueProvider = (*QlooVenueProvider)(nil)

func NewQlooVenueProvider(client *qloox.Client) *QlooVenueProvider {
	return &QlooVenueProvider{client: client}
}

func (p *QlooVenueProvider) Recommend(ctx context.Context, location, eventType string) ([]contractx.VenueItem, error) {
	query := strings.TrimSpace(eventType + " venue")
	entities, err := p.client.Insights(ctx, "urn:entity:place", query, location, 10)
	if err != nil {
		return nil, &contractx.ProviderError{
			Provider: qlooProviderName, Kind: contractx.KindVenue,
			Reason: "recommendation failed", Retryable: true, Err: err,
		}
	}

	items := make([]contractx.VenueItem, 0, len(entities))
	for _, e := range entities {
		if e.Name == "" {
			continue
		}
		items = append(items, contractx.VenueItem{
			ID:         e.ID,
			Name:       e.Name,
			Address:    stringProperty(e.Properties, "address"),
			Category:   stringProperty(e.Properties, "category"),
			Provider:   qlooProviderName,
			MatchScore: clamp01(e.Popularity),
		})
	}
	return items, nil
}
