package plannernode

import (
	"fmt"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
)

// ApplyDelta merges the extracted delta into the session profile and records
// the confirmation intent. An invariant violation is fatal for the turn; the
// profile must never hold contradictory values.
func ApplyDelta(in *GraphState) (*GraphState, error) {
	if in == nil || in.Session == nil || in.Extraction == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}

	if !in.Extraction.Delta.Empty() {
		changed, err := in.Session.Profile.Apply(in.Extraction.Delta)
		if err != nil {
			return nil, err
		}
		in.ChangedFields = changed
	}

	if in.Extraction.ConfirmGeneration {
		in.Session.GenerationArmed = true
	}
	if in.Extraction.PDFRequested && !in.Session.HasGenerated() {
		// Nothing to export yet; the envelope explains instead.
		in.Extraction.PDFRequested = false
	}

	return in, nil
}
