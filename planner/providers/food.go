package providers

import (
	"context"
	"strings"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	qloox "github.com/tiles-ai/tiles-planner/pkg/qloo"
)

// QlooFoodProvider recommends dishes and catering concepts.
type QlooFoodProvider struct {
	client *qloox.Client
}

var _ contractx.FoodProvider = (*QlooFoodProvider)(nil)

func NewQlooFoodProvider(client *qloox.Client) *QlooFoodProvider {
	return &QlooFoodProvider{client: client}
}

func (p *QlooFoodProvider) Recommend(ctx context.Context, signals contractx.FoodSignals) ([]contractx.FoodItem, error) {
	entities, err := p.client.Insights(ctx, "urn:entity:place", foodQuery(signals), signals.Location, 10)
	if err != nil {
		return nil, &contractx.ProviderError{
			Provider: qlooProviderName, Kind: contractx.KindFood,
			Reason: "recommendation failed", Retryable: true, Err: err,
		}
	}

	items := make([]contractx.FoodItem, 0, len(entities))
	for _, e := range entities {
		if e.Name == "" {
			continue
		}
		items = append(items, contractx.FoodItem{
			ID:          e.ID,
			Name:        e.Name,
			CuisineType: signals.Cuisine,
			Description: stringProperty(e.Properties, "description"),
			Provider:    qlooProviderName,
			MatchScore:  clamp01(e.Popularity),
		})
	}
	return items, nil
}

func foodQuery(signals contractx.FoodSignals) string {
	parts := make([]string, 0, 3)
	if signals.Cuisine != "" {
		parts = append(parts, signals.Cuisine)
	}
	parts = append(parts, "catering")
	if signals.EventType != "" {
		parts = append(parts, signals.EventType)
	}
	return strings.Join(parts, " ")
}
