package plannernode

import (
	"context"
	"encoding/json"
	"fmt"

	logx "github.com/tiles-ai/tiles-planner/pkg/logger"
	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	"github.com/tiles-ai/tiles-planner/planner/dispatch"
	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

// GenerationDispatcher fans a readiness decision out to the content
// providers.
type GenerationDispatcher interface {
	Dispatch(
		ctx context.Context,
		profile statex.EventProfile,
		kinds []contractx.GenerationKind,
		onLate func(dispatch.LateResult),
	) (*dispatch.Fragment, error)
}

// LateSink persists provider results that arrive after the turn returned.
type LateSink func(sessionID string, res dispatch.LateResult)

// DispatchGeneration runs the eligible kinds through the dispatcher, marks
// each delivered kind with the profile hash it was generated against, and
// caches the payloads on the session.
func DispatchGeneration(
	ctx context.Context,
	in *GraphState,
	dispatcher GenerationDispatcher,
	lateSink LateSink,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("%w: dispatcher is required", contractx.ErrValidation)
	}
	if !in.Decision.Ready() {
		return in, nil
	}

	if err := in.Session.Advance(statex.StageGenerating, in.Now); err != nil {
		return nil, err
	}

	sessionID := in.SessionID
	var onLate func(dispatch.LateResult)
	if lateSink != nil {
		onLate = func(res dispatch.LateResult) { lateSink(sessionID, res) }
	}

	frag, err := dispatcher.Dispatch(ctx, in.Session.Profile.Snapshot(), in.Decision.Kinds, onLate)
	if err != nil && frag == nil {
		return nil, err
	}
	if err != nil {
		nodeLog := logx.Component("nodes")
		nodeLog.Warn().Err(err).
			Str("session_id", sessionID).
			Msg("dispatch ended early, keeping partial results")
	}

	in.Fragment = frag
	for kind, hash := range frag.Generated {
		in.Session.MarkGenerated(string(kind), hash)
	}
	cacheFragment(in.Session, frag)

	if err := in.Session.Advance(statex.StageIdle, in.Now); err != nil {
		return nil, err
	}
	return in, nil
}

func cacheFragment(st *statex.SessionState, frag *dispatch.Fragment) {
	cache := func(kind contractx.GenerationKind, v any, n int) {
		if n == 0 {
			return
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return
		}
		st.CacheContent(string(kind), raw)
	}
	cache(contractx.KindImage, frag.Images, len(frag.Images))
	cache(contractx.KindMusic, frag.Music, len(frag.Music))
	cache(contractx.KindVenue, frag.Venues, len(frag.Venues))
	cache(contractx.KindFood, frag.Food, len(frag.Food))
}
