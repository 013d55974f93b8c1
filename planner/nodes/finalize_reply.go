package plannernode

import (
	"fmt"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Envelope == nil {
		return GraphOutput{}, fmt.Errorf("%w: envelope is missing", contractx.ErrValidation)
	}
	if err := in.Envelope.Validate(); err != nil {
		return GraphOutput{}, err
	}
	return GraphOutput{Envelope: in.Envelope}, nil
}
