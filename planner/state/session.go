package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stage tracks where a planning session sits in the turn lifecycle.
//
//	new → collecting → ready_pending → generating → idle
//
// Every non-terminal stage can fall back to collecting when a new message
// arrives; archived is terminal.
type Stage string

const (
	StageNew          Stage = "new"
	StageCollecting   Stage = "collecting"
	StageReadyPending Stage = "ready_pending"
	StageGenerating   Stage = "generating"
	StageIdle         Stage = "idle"
	StageArchived     Stage = "archived"
)

func (s Stage) valid() bool {
	switch s {
	case StageNew, StageCollecting, StageReadyPending, StageGenerating, StageIdle, StageArchived:
		return true
	}
	return false
}

var (
	ErrSessionArchived = errors.New("session is archived")
	ErrInvalidStage    = errors.New("invalid stage transition")
)

// SessionState is the persistent source-of-truth for one planning session:
// the evolving profile, the lifecycle stage, and per-kind generation marks
// that make re-dispatch idempotent under an unchanged profile.
type SessionState struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	Stage   Stage        `json:"stage"`
	Profile EventProfile `json:"profile"`

	// GenerationArmed is set once the user explicitly confirms they want
	// content generated; readiness alone never triggers dispatch.
	GenerationArmed bool `json:"generation_armed,omitempty"`

	// LastGenerated maps a generation kind to the profile hash (over that
	// kind's gating fields) at its last successful dispatch.
	LastGenerated map[string]string `json:"last_generated,omitempty"`

	// CachedContent holds generated items per kind, kept so late-arriving
	// provider results survive a caller disconnect and the gallery can be
	// rebuilt without re-dispatching.
	CachedContent map[string]json.RawMessage `json:"cached_content,omitempty"`

	TurnCount int       `json:"turn_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewSessionState(sessionID, userID string, now time.Time) *SessionState {
	return &SessionState{
		SessionID:     sessionID,
		UserID:        userID,
		Stage:         StageNew,
		LastGenerated: make(map[string]string, 4),
		CachedContent: make(map[string]json.RawMessage, 4),
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}
}

func (s *SessionState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

func (s *SessionState) EnsureMaps() {
	if s.LastGenerated == nil {
		s.LastGenerated = make(map[string]string, 4)
	}
	if s.CachedContent == nil {
		s.CachedContent = make(map[string]json.RawMessage, 4)
	}
}

func (s *SessionState) Archived() bool {
	return s != nil && s.Stage == StageArchived
}

// BeginTurn counts a new user message against the session.
func (s *SessionState) BeginTurn(now time.Time) error {
	if s == nil {
		return ErrNilSessionState
	}
	if s.Archived() {
		return fmt.Errorf("%w: session=%s", ErrSessionArchived, s.SessionID)
	}
	s.TurnCount++
	s.Touch(now)
	return nil
}

// Advance moves the session to the given stage, rejecting transitions the
// lifecycle does not allow.
func (s *SessionState) Advance(to Stage, now time.Time) error {
	if s == nil {
		return ErrNilSessionState
	}
	if !to.valid() {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidStage, to)
	}
	if s.Archived() {
		return fmt.Errorf("%w: session=%s", ErrSessionArchived, s.SessionID)
	}

	allowed := false
	switch to {
	case StageCollecting:
		allowed = true // any live stage can fall back to collecting
	case StageReadyPending:
		allowed = s.Stage == StageNew || s.Stage == StageCollecting || s.Stage == StageReadyPending || s.Stage == StageIdle
	case StageGenerating:
		allowed = s.Stage == StageReadyPending
	case StageIdle:
		allowed = s.Stage == StageGenerating || s.Stage == StageCollecting || s.Stage == StageReadyPending || s.Stage == StageIdle
	case StageArchived:
		allowed = true
	case StageNew:
		allowed = false
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStage, s.Stage, to)
	}

	s.Stage = to
	s.Touch(now)
	return nil
}

// Archive closes the session permanently.
func (s *SessionState) Archive(now time.Time) error {
	if s == nil {
		return ErrNilSessionState
	}
	s.Stage = StageArchived
	s.Touch(now)
	return nil
}

// MarkGenerated records the profile hash a kind was last generated against.
func (s *SessionState) MarkGenerated(kind, profileHash string) {
	if s == nil || strings.TrimSpace(kind) == "" || profileHash == "" {
		return
	}
	s.EnsureMaps()
	s.LastGenerated[kind] = profileHash
}

// CacheContent stores the delivered items for a kind.
func (s *SessionState) CacheContent(kind string, payload json.RawMessage) {
	if s == nil || strings.TrimSpace(kind) == "" || len(payload) == 0 {
		return
	}
	s.EnsureMaps()
	s.CachedContent[kind] = payload
}

// HasGenerated reports whether any kind has produced content so far.
func (s *SessionState) HasGenerated() bool {
	return s != nil && len(s.LastGenerated) > 0
}

func (s *SessionState) Validate() error {
	if s == nil {
		return ErrNilSessionState
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	if !s.Stage.valid() {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidStage, s.Stage)
	}
	if s.TurnCount < 0 {
		return fmt.Errorf("negative turn count %d", s.TurnCount)
	}
	for kind, hash := range s.LastGenerated {
		if strings.TrimSpace(kind) == "" || strings.TrimSpace(hash) == "" {
			return fmt.Errorf("generation mark with empty kind or hash")
		}
	}
	return s.Profile.Validate()
}
