package readiness

import (
	"fmt"
	"sort"
	"strings"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

// requirements maps each generation kind to the profile fields that must be
// confirmed before that kind may dispatch. Music accepts either signal.
var requirements = map[contractx.GenerationKind][]statex.FieldName{
	contractx.KindImage: {statex.FieldEventType, statex.FieldLocation, statex.FieldGuestCount},
	contractx.KindMusic: {statex.FieldEventType, statex.FieldStyleTags},
	contractx.KindVenue: {statex.FieldLocation, statex.FieldEventType},
	contractx.KindFood:  {statex.FieldEventType, statex.FieldCuisine},
}

// GatingFields returns the profile fields whose values gate a kind. The same
// list feeds both eligibility and the change-detection hash, so a kind
// re-dispatches exactly when one of its own gating fields changes.
func GatingFields(kind contractx.GenerationKind) []statex.FieldName {
	return requirements[kind]
}

// ProfileHash digests a kind's gating fields out of the profile.
func ProfileHash(profile *statex.EventProfile, kind contractx.GenerationKind) string {
	return profile.HashFields(GatingFields(kind)...)
}

// Evaluator is the single source of truth for generation eligibility.
type Evaluator struct{}

var _ contractx.ReadinessEvaluator = Evaluator{}

func New() Evaluator { return Evaluator{} }

// Evaluate returns the kinds eligible for dispatch right now: requirements
// met AND gating fields changed since the kind's last successful dispatch.
// marks is SessionState.LastGenerated.
func (Evaluator) Evaluate(profile *statex.EventProfile, marks map[string]string) contractx.Decision {
	d := contractx.Decision{
		Missing: make(map[contractx.GenerationKind][]statex.FieldName),
	}
	if profile == nil {
		d.Reason = "no profile"
		return d
	}

	var unchanged []string
	for _, kind := range contractx.AllKinds() {
		missing := missingFields(profile, kind)
		if len(missing) > 0 {
			d.Missing[kind] = missing
			continue
		}
		if marks[string(kind)] == ProfileHash(profile, kind) {
			unchanged = append(unchanged, string(kind))
			continue
		}
		d.Kinds = append(d.Kinds, kind)
	}

	d.Reason = summarize(d, unchanged)
	return d
}

func missingFields(profile *statex.EventProfile, kind contractx.GenerationKind) []statex.FieldName {
	required := requirements[kind]

	// Music is satisfiable by either mood signal.
	if kind == contractx.KindMusic {
		if profile.Has(statex.FieldEventType) || profile.Has(statex.FieldStyleTags) {
			return nil
		}
		return required
	}

	var missing []statex.FieldName
	for _, f := range required {
		if !profile.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

func summarize(d contractx.Decision, unchanged []string) string {
	if len(d.Kinds) > 0 {
		names := make([]string, 0, len(d.Kinds))
		for _, k := range d.Kinds {
			names = append(names, string(k))
		}
		return "eligible: " + strings.Join(names, ",")
	}
	if len(unchanged) > 0 && len(d.Missing) == 0 {
		return "profile unchanged since last generation"
	}

	parts := make([]string, 0, len(d.Missing))
	for kind, fields := range d.Missing {
		names := make([]string, 0, len(fields))
		for _, f := range fields {
			names = append(names, string(f))
		}
		parts = append(parts, fmt.Sprintf("%s needs %s", kind, strings.Join(names, "+")))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
