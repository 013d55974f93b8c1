package plannernode

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

func LoadOrCreateState(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	st, err := store.Load(ctx, in.SessionID)
	if err != nil {
		if !errors.Is(err, statex.ErrStateNotFound) {
			return nil, err
		}
		st = statex.NewSessionState(in.SessionID, in.UserID, in.Now)
	}

	// An archived session never accepts another turn.
	if err := st.BeginTurn(in.Now); err != nil {
		return nil, err
	}

	in.Session = st
	return in, nil
}
