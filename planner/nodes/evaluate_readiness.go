package plannernode

import (
	"fmt"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

// EvaluateReadiness decides which kinds may dispatch this turn and moves the
// session stage accordingly. Dispatch additionally requires the user's
// explicit confirmation; readiness alone parks the session in ready_pending.
func EvaluateReadiness(
	in *GraphState,
	evaluator contractx.ReadinessEvaluator,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if evaluator == nil {
		return nil, fmt.Errorf("%w: readiness evaluator is required", contractx.ErrValidation)
	}

	in.Decision = evaluator.Evaluate(&in.Session.Profile, in.Session.LastGenerated)

	stage := statex.StageCollecting
	if in.Decision.Ready() {
		stage = statex.StageReadyPending
	}
	if err := in.Session.Advance(stage, in.Now); err != nil {
		return nil, err
	}

	return in, nil
}

// ShouldDispatch is the branch condition after readiness evaluation.
func ShouldDispatch(in *GraphState) bool {
	return in != nil && in.Session != nil &&
		in.Decision.Ready() && in.Session.GenerationArmed
}
