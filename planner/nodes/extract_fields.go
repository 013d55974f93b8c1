package plannernode

import (
	"context"
	"fmt"

	logx "github.com/tiles-ai/tiles-planner/pkg/logger"
	"github.com/tiles-ai/tiles-planner/pkg/metrics"
	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
)

// ExtractFields runs language understanding over the raw message. When the
// language provider fails, the turn continues with an empty delta marked
// degraded so the user still gets an honest reply.
func ExtractFields(
	ctx context.Context,
	in *GraphState,
	lu contractx.LanguageUnderstanding,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if lu == nil {
		return nil, fmt.Errorf("%w: language understanding is required", contractx.ErrValidation)
	}

	result, err := lu.Extract(ctx, contractx.ExtractionRequest{
		Text:          in.Text,
		Profile:       in.Session.Profile.Snapshot(),
		MemorySummary: in.MemorySummary,
		Now:           in.Now,
	})
	if err != nil {
		metrics.ExtractionDegradedTotal.Inc()
		nodeLog := logx.Component("nodes")
		nodeLog.Warn().Err(err).
			Str("session_id", in.SessionID).
			Msg("extraction degraded")
		in.Extraction = &contractx.ExtractionResult{Degraded: true}
		return in, nil
	}

	in.Extraction = result
	return in, nil
}
