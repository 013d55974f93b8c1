package plannernode

import (
	"context"
	"fmt"

	logx "github.com/tiles-ai/tiles-planner/pkg/logger"
	"github.com/tiles-ai/tiles-planner/pkg/metrics"
	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	memoryx "github.com/tiles-ai/tiles-planner/planner/memory"
)

// WriteMemory folds the turn into the durable memory record. Memory is a
// derived cache; a write failure is logged and counted but never fails the
// turn.
func WriteMemory(
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

	update := memoryx.Summarize(in.Session, in.Envelope, in.Now)
	merged := memoryx.Merge(in.Memory, update)
	if merged == nil {
		return in, nil
	}

	if err := memory.Save(ctx, merged); err != nil {
		metrics.MemoryWriteFailuresTotal.Inc()
		nodeLog := logx.Component("nodes")
		nodeLog.Warn().Err(err).
			Str("session_id", in.SessionID).
			Msg("memory write failed")
	}
	return in, nil
}
