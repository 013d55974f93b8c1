package state

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestBeginTurnIncrementsCount(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	st := NewSessionState("s1", "u1", now)
	if err := st.BeginTurn(now); err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	if st.TurnCount != 1 {
		t.Fatalf("TurnCount = %d, want 1", st.TurnCount)
	}
}

func TestBeginTurnRejectsArchived(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	st := NewSessionState("s1", "u1", now)
	if err := st.Archive(now); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if err := st.BeginTurn(now); !errors.Is(err, ErrSessionArchived) {
		t.Fatalf("BeginTurn() error = %v, want ErrSessionArchived", err)
	}
}

func TestAdvanceLifecycle(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	st := NewSessionState("s1", "u1", now)

	steps := []Stage{StageCollecting, StageReadyPending, StageGenerating, StageIdle}
	for _, stage := range steps {
		if err := st.Advance(stage, now); err != nil {
			t.Fatalf("Advance(%s) error = %v", stage, err)
		}
	}
	if st.Stage != StageIdle {
		t.Fatalf("Stage = %s, want idle", st.Stage)
	}
}

func TestAdvanceRejectsGeneratingFromCollecting(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	st := NewSessionState("s1", "u1", now)
	if err := st.Advance(StageCollecting, now); err != nil {
		t.Fatalf("Advance(collecting) error = %v", err)
	}
	if err := st.Advance(StageGenerating, now); !errors.Is(err, ErrInvalidStage) {
		t.Fatalf("Advance(generating) error = %v, want ErrInvalidStage", err)
	}
}

func TestAdvanceRejectsArchivedSession(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	st := NewSessionState("s1", "u1", now)
	if err := st.Archive(now); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if err := st.Advance(StageCollecting, now); !errors.Is(err, ErrSessionArchived) {
		t.Fatalf("Advance() error = %v, want ErrSessionArchived", err)
	}
}

func TestMarkGeneratedAndCache(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	st := NewSessionState("s1", "u1", now)

	st.MarkGenerated("image", "abc123")
	st.CacheContent("image", json.RawMessage(`[{"id":"img-1"}]`))

	if !st.HasGenerated() {
		t.Fatal("HasGenerated() = false after mark")
	}
	if st.LastGenerated["image"] != "abc123" {
		t.Fatalf("LastGenerated = %v", st.LastGenerated)
	}
	if len(st.CachedContent["image"]) == 0 {
		t.Fatal("cached content missing")
	}

	// Empty inputs are ignored, not stored.
	st.MarkGenerated("", "x")
	st.MarkGenerated("music", "")
	st.CacheContent("music", nil)
	if len(st.LastGenerated) != 1 || len(st.CachedContent) != 1 {
		t.Fatalf("empty inputs were stored: %v %v", st.LastGenerated, st.CachedContent)
	}
}

func TestValidateRequiresSessionID(t *testing.T) {
	t.Parallel()

	st := NewSessionState("", "u1", time.Now().UTC())
	if err := st.Validate(); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("Validate() error = %v, want ErrInvalidSession", err)
	}
}
