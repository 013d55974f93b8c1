package plannernode

import (
	"strings"
	"testing"
	"time"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	"github.com/tiles-ai/tiles-planner/planner/dispatch"
	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

func baseState(t *testing.T) *GraphState {
	t.Helper()
	now := time.Now().UTC()
	return &GraphState{
		SessionID:  "s1",
		UserID:     "u1",
		Text:       "hello",
		AttemptID:  "attempt-1",
		Now:        now,
		Session:    statex.NewSessionState("s1", "u1", now),
		Extraction: &contractx.ExtractionResult{},
	}
}

func TestComposeEnvelopeDegradedWinsOverQuestions(t *testing.T) {
	t.Parallel()

	in := baseState(t)
	in.Extraction.Degraded = true
	in.Extraction.Questions = []string{"Where?"}

	out, err := ComposeEnvelope(in)
	if err != nil {
		t.Fatalf("ComposeEnvelope() error = %v", err)
	}
	if !strings.Contains(out.Envelope.Reply, "trouble understanding") {
		t.Fatalf("Reply = %q, want degraded explanation", out.Envelope.Reply)
	}
	if out.Envelope.Flags.RefreshGallery {
		t.Fatal("degraded turn set refresh_gallery")
	}
}

func TestComposeEnvelopeGeneratedContent(t *testing.T) {
	t.Parallel()

	in := baseState(t)
	in.Session.Profile.EventType = "birthday"
	in.Decision = contractx.Decision{Kinds: []contractx.GenerationKind{contractx.KindImage}}
	in.Fragment = &dispatch.Fragment{
		Images:      []contractx.ImageItem{{ID: "i1", URL: "https://example.com/i1"}},
		Generated:   map[contractx.GenerationKind]string{contractx.KindImage: "h1"},
		Unavailable: map[contractx.GenerationKind]string{},
	}

	out, err := ComposeEnvelope(in)
	if err != nil {
		t.Fatalf("ComposeEnvelope() error = %v", err)
	}
	env := out.Envelope
	if !env.Flags.RefreshGallery {
		t.Fatal("refresh_gallery not set with fresh content")
	}
	if env.Flags.GenerationStatus != contractx.GenerationStatusGenerated {
		t.Fatalf("status = %s", env.Flags.GenerationStatus)
	}
	if !strings.Contains(env.Reply, "1 inspiration images") || !strings.Contains(env.Reply, "birthday") {
		t.Fatalf("Reply = %q", env.Reply)
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestComposeEnvelopePartialMentionsFailures(t *testing.T) {
	t.Parallel()

	in := baseState(t)
	in.Decision = contractx.Decision{Kinds: []contractx.GenerationKind{contractx.KindImage, contractx.KindMusic}}
	in.Fragment = &dispatch.Fragment{
		Images:      []contractx.ImageItem{{ID: "i1", URL: "https://example.com/i1"}},
		Generated:   map[contractx.GenerationKind]string{contractx.KindImage: "h1"},
		Unavailable: map[contractx.GenerationKind]string{contractx.KindMusic: "timed out"},
	}

	out, err := ComposeEnvelope(in)
	if err != nil {
		t.Fatalf("ComposeEnvelope() error = %v", err)
	}
	if out.Envelope.Flags.GenerationStatus != contractx.GenerationStatusPartial {
		t.Fatalf("status = %s, want partial", out.Envelope.Flags.GenerationStatus)
	}
	if !strings.Contains(out.Envelope.Reply, "music") {
		t.Fatalf("Reply = %q, want failed kind named", out.Envelope.Reply)
	}
}

func TestComposeEnvelopeAllProvidersDown(t *testing.T) {
	t.Parallel()

	in := baseState(t)
	in.Decision = contractx.Decision{Kinds: []contractx.GenerationKind{contractx.KindImage}}
	in.Fragment = &dispatch.Fragment{
		Generated:   map[contractx.GenerationKind]string{},
		Unavailable: map[contractx.GenerationKind]string{contractx.KindImage: "failed"},
	}

	out, err := ComposeEnvelope(in)
	if err != nil {
		t.Fatalf("ComposeEnvelope() error = %v", err)
	}
	env := out.Envelope
	if env.Flags.RefreshGallery {
		t.Fatal("refresh_gallery with no content")
	}
	if env.Flags.GenerationStatus != contractx.GenerationStatusUnavailable {
		t.Fatalf("status = %s, want unavailable", env.Flags.GenerationStatus)
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestComposeEnvelopeAwaitingConfirmation(t *testing.T) {
	t.Parallel()

	in := baseState(t)
	in.Session.Profile.EventType = "wedding"
	in.Decision = contractx.Decision{Kinds: []contractx.GenerationKind{contractx.KindImage}}

	out, err := ComposeEnvelope(in)
	if err != nil {
		t.Fatalf("ComposeEnvelope() error = %v", err)
	}
	if out.Envelope.Flags.GenerationStatus != contractx.GenerationStatusSkipped {
		t.Fatalf("status = %s, want skipped", out.Envelope.Flags.GenerationStatus)
	}
	if !strings.Contains(out.Envelope.Reply, "Want me to go ahead?") {
		t.Fatalf("Reply = %q, want confirmation prompt", out.Envelope.Reply)
	}
}

func TestComposeEnvelopeQuestionsFollowAcknowledgement(t *testing.T) {
	t.Parallel()

	in := baseState(t)
	in.Extraction.Reply = "A birthday, lovely."
	in.Extraction.Questions = []string{"Where will it be?"}

	out, err := ComposeEnvelope(in)
	if err != nil {
		t.Fatalf("ComposeEnvelope() error = %v", err)
	}
	reply := out.Envelope.Reply
	if !strings.HasPrefix(reply, "A birthday, lovely.") || !strings.Contains(reply, "Where will it be?") {
		t.Fatalf("Reply = %q", reply)
	}
}

func TestApplyDeltaEmptyDeltaStillArmsGeneration(t *testing.T) {
	t.Parallel()

	in := baseState(t)
	in.Session.Profile.EventType = "birthday"
	in.Extraction.ConfirmGeneration = true

	out, err := ApplyDelta(in)
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	if out.Session.Profile.EventType != "birthday" {
		t.Fatalf("profile changed by empty delta: %q", out.Session.Profile.EventType)
	}
	if len(out.ChangedFields) != 0 {
		t.Fatalf("ChangedFields = %v, want none", out.ChangedFields)
	}
	if !out.Session.GenerationArmed {
		t.Fatal("confirmation did not arm generation")
	}
}

func TestValidateRequestGeneratesAttemptID(t *testing.T) {
	t.Parallel()

	st, err := ValidateRequest(GraphInput{SessionID: "s1", UserID: "u1", Text: "hi"}, time.Now)
	if err != nil {
		t.Fatalf("ValidateRequest() error = %v", err)
	}
	if st.AttemptID == "" {
		t.Fatal("missing attempt id")
	}

	st2, err := ValidateRequest(GraphInput{SessionID: "s1", UserID: "u1", Text: "hi"}, time.Now)
	if err != nil {
		t.Fatalf("ValidateRequest() error = %v", err)
	}
	if st.AttemptID == st2.AttemptID {
		t.Fatal("attempt ids must be unique per turn")
	}
}
