package plannernode

import (
	"context"
	"fmt"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

func SaveState(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	in.Session.Touch(in.Now)
	if err := store.Save(ctx, in.Session); err != nil {
		return nil, fmt.Errorf("save session state: %w", err)
	}
	return in, nil
}
