package plannernode

import (
	"context"
	"fmt"

	logx "github.com/tiles-ai/tiles-planner/pkg/logger"
	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
)

// ReadMemory loads the prior memory record for this session. A memory read
// failure degrades recall for the turn but never blocks it.
func ReadMemory(
	ctx context.Context,
	in *GraphState,
	memory contractx.MemoryStore,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if memory == nil {
		return in, nil
	}

	rec, err := memory.Load(ctx, in.UserID, in.SessionID)
	if err != nil {
		nodeLog := logx.Component("nodes")
		nodeLog.Warn().Err(err).
			Str("session_id", in.SessionID).
			Msg("memory read failed, continuing without recall")
		return in, nil
	}

	in.Memory = rec
	if rec != nil {
		in.MemorySummary = rec.Summary
	}
	return in, nil
}
