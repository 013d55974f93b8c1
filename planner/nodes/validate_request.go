package plannernode

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	"github.com/tiles-ai/tiles-planner/planner/dispatch"
	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
	ErrInvalidUser    = errors.New("user id is empty")
)

type GraphInput struct {
	SessionID string
	UserID    string
	Text      string
}

type GraphOutput struct {
	Envelope *contractx.GenerationEnvelope
}

type GraphState struct {
	SessionID string
	UserID    string
	Text      string
	AttemptID string
	Now       time.Time

	Session       *statex.SessionState
	Memory        *contractx.MemoryRecord
	MemorySummary string

	Extraction    *contractx.ExtractionResult
	ChangedFields []statex.FieldName

	Decision contractx.Decision
	Fragment *dispatch.Fragment

	Envelope *contractx.GenerationEnvelope
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, ErrInvalidUser
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID: sessionID,
		UserID:    userID,
		Text:      text,
		AttemptID: uuid.NewString(),
		Now:       nowFn().UTC(),
	}, nil
}
