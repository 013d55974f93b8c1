package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

func TestSanitizeResultDropsUnknownRetracts(t *testing.T) {
	t.Parallel()

	got := sanitizeResult(llmDelta{
		EventType: " birthday ",
		Retract:   []string{"style_tags", "vibes", "GUEST_COUNT"},
	})

	if got.Delta.EventType != "birthday" {
		t.Fatalf("EventType = %q", got.Delta.EventType)
	}
	if len(got.Delta.Retract) != 2 {
		t.Fatalf("Retract = %v, want style_tags and guest_count only", got.Delta.Retract)
	}
	for _, f := range got.Delta.Retract {
		if f != statex.FieldStyleTags && f != statex.FieldGuestCount {
			t.Fatalf("unexpected retract %q", f)
		}
	}
}

func TestSanitizeResultCapsQuestions(t *testing.T) {
	t.Parallel()

	got := sanitizeResult(llmDelta{
		Questions: []string{"one?", "  ", "null", "two?", "three?"},
	})
	if len(got.Questions) != maxFollowUpQuestions {
		t.Fatalf("Questions = %v, want %d", got.Questions, maxFollowUpQuestions)
	}
	if got.Questions[0] != "one?" || got.Questions[1] != "two?" {
		t.Fatalf("Questions = %v", got.Questions)
	}
}

func TestSanitizeResultClampsConfidence(t *testing.T) {
	t.Parallel()

	got := sanitizeResult(llmDelta{
		EventType: "birthday",
		Confidence: map[string]float64{
			"event_type": 1.7,
			"location":   -0.2,
			"made_up":    0.5,
		},
	})
	if got.Delta.Confidence[statex.FieldEventType] != 1 {
		t.Fatalf("confidence = %v, want clamped to 1", got.Delta.Confidence)
	}
	if got.Delta.Confidence[statex.FieldLocation] != 0 {
		t.Fatalf("confidence = %v, want clamped to 0", got.Delta.Confidence)
	}
	if _, ok := got.Delta.Confidence["made_up"]; ok {
		t.Fatal("unknown confidence field kept")
	}
}

func TestExtractRequiresText(t *testing.T) {
	t.Parallel()

	e := &Extractor{invoke: func(context.Context, map[string]any) (llmDelta, error) {
		t.Fatal("invoke must not be called")
		return llmDelta{}, nil
	}}
	_, err := e.Extract(context.Background(), contractx.ExtractionRequest{Text: "   "})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Extract() error = %v, want ErrValidation", err)
	}
}

func TestExtractPassesContextToModel(t *testing.T) {
	t.Parallel()

	var gotInput map[string]any
	e := &Extractor{
		schemaDoc: `{"type":"object"}`,
		invoke: func(_ context.Context, in map[string]any) (llmDelta, error) {
			gotInput = in
			return llmDelta{EventType: "wedding", ConfirmGeneration: true}, nil
		},
	}

	res, err := e.Extract(context.Background(), contractx.ExtractionRequest{
		Text:          "a rustic wedding please",
		Profile:       statex.EventProfile{Location: "Austin"},
		MemorySummary: "planning since last week",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Delta.EventType != "wedding" || !res.ConfirmGeneration {
		t.Fatalf("result = %+v", res)
	}

	if gotInput["input"] != "a rustic wedding please" {
		t.Fatalf("input = %v", gotInput["input"])
	}
	if !strings.Contains(gotInput["profile"].(string), "Austin") {
		t.Fatalf("profile payload = %v", gotInput["profile"])
	}
	if gotInput["memory"] != "planning since last week" {
		t.Fatalf("memory = %v", gotInput["memory"])
	}
	if gotInput["schema"] != `{"type":"object"}` {
		t.Fatalf("schema = %v", gotInput["schema"])
	}
}

func TestExtractWrapsModelFailureAsDegraded(t *testing.T) {
	t.Parallel()

	e := &Extractor{invoke: func(context.Context, map[string]any) (llmDelta, error) {
		return llmDelta{}, errors.New("upstream 503")
	}}
	_, err := e.Extract(context.Background(), contractx.ExtractionRequest{Text: "hello"})
	if !errors.Is(err, contractx.ErrDegradedExtraction) {
		t.Fatalf("Extract() error = %v, want ErrDegradedExtraction", err)
	}
}

func TestDeltaSchemaJSONIsValid(t *testing.T) {
	t.Parallel()

	doc := deltaSchemaJSON()
	if !strings.Contains(doc, "event_type") || !strings.Contains(doc, "confirm_generation") {
		t.Fatalf("schema doc missing expected fields: %s", doc)
	}
}
