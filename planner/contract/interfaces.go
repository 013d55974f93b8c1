package contract

import (
	"context"

	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

// LanguageUnderstanding turns one raw chat message into a structured
// extraction result against the current profile.
type LanguageUnderstanding interface {
	Extract(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error)
}

// ImageProvider generates inspiration images for a prompt.
type ImageProvider interface {
	Generate(ctx context.Context, prompt string, count int) ([]ImageItem, error)
}

// MusicProvider recommends tracks matching the event's mood signals.
type MusicProvider interface {
	Recommend(ctx context.Context, signals MusicSignals) ([]MusicItem, error)
}

// VenueProvider recommends venues for a location and event type.
type VenueProvider interface {
	Recommend(ctx context.Context, location, eventType string) ([]VenueItem, error)
}

// FoodProvider recommends dishes or catering concepts.
type FoodProvider interface {
	Recommend(ctx context.Context, signals FoodSignals) ([]FoodItem, error)
}

// DocumentExporter renders the current plan into a downloadable document.
type DocumentExporter interface {
	Render(ctx context.Context, sessionID string) ([]byte, error)
}

// MemoryStore persists MemoryRecords across sessions.
type MemoryStore interface {
	// Load returns the record for a session, or (nil, nil) when none exists.
	Load(ctx context.Context, userID, sessionID string) (*MemoryRecord, error)
	// LoadUser returns the most recent records for a user, newest first.
	LoadUser(ctx context.Context, userID string, limit int) ([]MemoryRecord, error)
	Save(ctx context.Context, rec *MemoryRecord) error
}

// Publisher broadcasts turn-completed events.
type Publisher interface {
	PublishTurnCompleted(ctx context.Context, ev TurnEvent) error
}

// ReadinessEvaluator decides which kinds are eligible for dispatch given the
// current profile and the per-kind generation marks.
type ReadinessEvaluator interface {
	Evaluate(profile *statex.EventProfile, marks map[string]string) Decision
}

// Decision is the readiness verdict for one turn.
type Decision struct {
	// Kinds lists the generation kinds whose requirements are met and whose
	// gating fields changed since their last dispatch.
	Kinds []GenerationKind
	// Missing maps each ineligible kind to the fields still unconfirmed.
	Missing map[GenerationKind][]statex.FieldName
	// Reason is a short human-readable explanation for logging.
	Reason string
}

func (d Decision) Ready() bool {
	return len(d.Kinds) > 0
}
