package contract

import (
	"time"

	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

// GenerationKind is a category of generated content.
type GenerationKind string

const (
	KindImage GenerationKind = "image"
	KindMusic GenerationKind = "music"
	KindVenue GenerationKind = "venue"
	KindFood  GenerationKind = "food"
)

func AllKinds() []GenerationKind {
	return []GenerationKind{KindImage, KindMusic, KindVenue, KindFood}
}

// ExtractionRequest is the input to one language-understanding call.
type ExtractionRequest struct {
	Text          string             `json:"text"`
	Profile       statex.EventProfile `json:"profile"`
	MemorySummary string             `json:"memory_summary,omitempty"`
	Now           time.Time          `json:"now"`
}

// ExtractionResult carries the partial profile update plus the turn-level
// intent signals the extractor recognized.
type ExtractionResult struct {
	Delta statex.ProfileDelta `json:"delta"`

	// ConfirmGeneration is set when the user explicitly asked to generate
	// ("yes, go ahead") rather than just supplying details.
	ConfirmGeneration bool `json:"confirm_generation,omitempty"`

	// PDFRequested is set when the user asked for the plan document.
	PDFRequested bool `json:"pdf_requested,omitempty"`

	// Questions lists what the extractor would ask next for missing fields.
	Questions []string `json:"questions,omitempty"`

	// Reply is an optional extractor-suggested response line.
	Reply string `json:"reply,omitempty"`

	// Degraded marks a turn where the language provider was unavailable and
	// the delta is empty by policy, not by content.
	Degraded bool `json:"degraded,omitempty"`
}

// ImageItem is one generated inspiration image.
type ImageItem struct {
	ID         string  `json:"id"`
	URL        string  `json:"url"`
	ThumbURL   string  `json:"thumb_url,omitempty"`
	Prompt     string  `json:"prompt,omitempty"`
	Style      string  `json:"style,omitempty"`
	Provider   string  `json:"provider"`
	Confidence float64 `json:"confidence"`
}

// MusicItem is one recommended track or playlist seed.
type MusicItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist,omitempty"`
	Genre      string  `json:"genre,omitempty"`
	PreviewURL string  `json:"preview_url,omitempty"`
	Provider   string  `json:"provider"`
	MatchScore float64 `json:"match_score"`
}

// VenueItem is one recommended venue.
type VenueItem struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Address    string  `json:"address,omitempty"`
	Category   string  `json:"category,omitempty"`
	Provider   string  `json:"provider"`
	MatchScore float64 `json:"match_score"`
}

// FoodItem is one recommended dish or catering concept.
type FoodItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CuisineType string  `json:"cuisine_type,omitempty"`
	Description string  `json:"description,omitempty"`
	Provider    string  `json:"provider"`
	MatchScore  float64 `json:"match_score"`
}

// MusicSignals are the profile signals a music provider matches against.
type MusicSignals struct {
	EventType string
	StyleTags []string
}

// FoodSignals are the profile signals a food provider matches against.
type FoodSignals struct {
	EventType string
	Cuisine   string
	Location  string
}

// GenerationStatus values reported on the envelope.
const (
	GenerationStatusIdle        = "idle"
	GenerationStatusGenerated   = "generated"
	GenerationStatusPartial     = "partial"
	GenerationStatusUnavailable = "unavailable"
	GenerationStatusSkipped     = "skipped"
)

// EnvelopeFlags is the contract the presentation layer reacts to. The flags
// must truthfully describe the envelope payload; see Validate.
type EnvelopeFlags struct {
	RefreshGallery   bool   `json:"refresh_gallery"`
	ReadyToGenerate  bool   `json:"ready_to_generate"`
	GenerationStatus string `json:"generation_status"`
	PDFRequested     bool   `json:"pdf_requested,omitempty"`

	// DeferralReason explains a ReadyToGenerate flag that produced no
	// content blocks (all providers failed, confirmation pending, ...).
	DeferralReason string `json:"deferral_reason,omitempty"`
}

// GenerationEnvelope is the per-turn output bundle.
type GenerationEnvelope struct {
	AttemptID string `json:"attempt_id"`
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`

	Images []ImageItem `json:"image_data,omitempty"`
	Music  []MusicItem `json:"music_data,omitempty"`
	Venues []VenueItem `json:"venue_data,omitempty"`
	Food   []FoodItem  `json:"food_data,omitempty"`

	// Unavailable maps a requested kind to the reason it produced nothing.
	Unavailable map[GenerationKind]string `json:"unavailable,omitempty"`

	Flags     EnvelopeFlags `json:"flags"`
	CreatedAt time.Time     `json:"created_at"`
}

func (e *GenerationEnvelope) HasContent() bool {
	if e == nil {
		return false
	}
	return len(e.Images) > 0 || len(e.Music) > 0 || len(e.Venues) > 0 || len(e.Food) > 0
}

// ItemCount returns the total number of attached content items.
func (e *GenerationEnvelope) ItemCount() int {
	if e == nil {
		return 0
	}
	return len(e.Images) + len(e.Music) + len(e.Venues) + len(e.Food)
}

// ContentRef is a reference (never a copy) to generated content, kept in
// memory records for recall.
type ContentRef struct {
	Kind GenerationKind `json:"kind"`
	ID   string         `json:"id"`
	URL  string         `json:"url,omitempty"`
}

// MemoryRecord is the durable cross-turn memory for a user and session.
// It is a derived cache: rebuildable from the transcript plus provider
// responses, and it never holds credentials.
type MemoryRecord struct {
	UserID    string       `json:"user_id"`
	SessionID string       `json:"session_id"`
	Summary   string       `json:"summary"`
	// ActiveTopics are named threads of unfinished intent the assistant is
	// still monitoring ("venue shortlist pending", ...).
	ActiveTopics []string     `json:"active_topics,omitempty"`
	ContentRefs  []ContentRef `json:"content_refs,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// TurnEvent is published after each completed turn so surrounding layers can
// react to gallery changes without polling.
type TurnEvent struct {
	SessionID      string           `json:"session_id"`
	AttemptID      string           `json:"attempt_id"`
	RefreshGallery bool             `json:"refresh_gallery"`
	Kinds          []GenerationKind `json:"kinds,omitempty"`
	CompletedAt    time.Time        `json:"completed_at"`
}
