package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	nodex "github.com/tiles-ai/tiles-planner/planner/nodes"
)

func (o *Orchestrator) compileHandleTurnGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_or_create_state",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadOrCreateState(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_or_create_state: %w", err)
	}

	if err := graph.AddLambdaNode("read_memory",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ReadMemory(ctx, in, o.memory)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node read_memory: %w", err)
	}

	if err := graph.AddLambdaNode("extract_fields",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ExtractFields(ctx, in, o.extractor)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node extract_fields: %w", err)
	}

	if err := graph.AddLambdaNode("apply_delta",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ApplyDelta(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node apply_delta: %w", err)
	}

	if err := graph.AddLambdaNode("evaluate_readiness",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.EvaluateReadiness(in, o.evaluator)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node evaluate_readiness: %w", err)
	}

	if err := graph.AddLambdaNode("dispatch_generation",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.DispatchGeneration(ctx, in, o.dispatcher, o.cacheLateResult)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node dispatch_generation: %w", err)
	}

	if err := graph.AddLambdaNode("compose_envelope",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ComposeEnvelope(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node compose_envelope: %w", err)
	}

	if err := graph.AddLambdaNode("save_state",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.SaveState(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node save_state: %w", err)
	}

	if err := graph.AddLambdaNode("write_memory",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.WriteMemory(ctx, in, o.memory)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node write_memory: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	// Eligible and confirmed turns run the providers; everything else goes
	// straight to the envelope.
	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
			}
			if nodex.ShouldDispatch(in) {
				return "dispatch_generation", nil
			}
			return "compose_envelope", nil
		},
		map[string]bool{
			"dispatch_generation": true,
			"compose_envelope":    true,
		},
	)
	if err := graph.AddBranch("evaluate_readiness", branch); err != nil {
		return nil, fmt.Errorf("add readiness branch: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_or_create_state"},
		{"load_or_create_state", "read_memory"},
		{"read_memory", "extract_fields"},
		{"extract_fields", "apply_delta"},
		{"apply_delta", "evaluate_readiness"},
		{"dispatch_generation", "compose_envelope"},
		{"compose_envelope", "save_state"},
		{"save_state", "write_memory"},
		{"write_memory", "finalize_reply"},
		{"finalize_reply", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.handle_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile turn graph: %w", err)
	}
	return runner, nil
}
