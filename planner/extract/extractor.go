package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog"

	logx "github.com/tiles-ai/tiles-planner/pkg/logger"
	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

const maxFollowUpQuestions = 2

// llmDelta is the raw shape the model is asked to emit. It mirrors
// ProfileDelta plus the turn-level intent flags; everything passes through
// sanitization before it touches the profile.
type llmDelta struct {
	EventType   string   `json:"event_type,omitempty"`
	Location    string   `json:"location,omitempty"`
	GuestCount  *int     `json:"guest_count,omitempty"`
	DateStart   string   `json:"date_start,omitempty"`
	DateEnd     string   `json:"date_end,omitempty"`
	BudgetTier  string   `json:"budget_tier,omitempty"`
	StyleTags   []string `json:"style_tags,omitempty"`
	Cuisine     string   `json:"cuisine,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
	Retract     []string `json:"retract,omitempty"`

	Confidence map[string]float64 `json:"confidence,omitempty"`

	ConfirmGeneration bool     `json:"confirm_generation,omitempty"`
	PDFRequested      bool     `json:"pdf_requested,omitempty"`
	Questions         []string `json:"questions,omitempty"`
	Reply             string   `json:"reply,omitempty"`
}

// Extractor is the LanguageUnderstanding implementation backed by a
// structured-output chat model graph.
type Extractor struct {
	invoke    func(ctx context.Context, in map[string]any) (llmDelta, error)
	schemaDoc string
	log       zerolog.Logger
}

var _ contractx.LanguageUnderstanding = (*Extractor)(nil)

func New(ctx context.Context, cfg Config, systemPrompt string) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: extractor system prompt is required", contractx.ErrValidation)
	}

	chatModel, err := cfg.newChatModel(ctx)
	if err != nil {
		return nil, err
	}

	runner, err := compileExtractorGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, err
	}

	return &Extractor{
		invoke: func(ctx context.Context, in map[string]any) (llmDelta, error) {
			return runner.Invoke(ctx, in)
		},
		schemaDoc: deltaSchemaJSON(),
		log:       logx.Component("extractor"),
	}, nil
}

func (e *Extractor) Extract(ctx context.Context, req contractx.ExtractionRequest) (*contractx.ExtractionResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: message text is required", contractx.ErrValidation)
	}

	profileJSON, err := json.Marshal(req.Profile)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal profile: %v", contractx.ErrValidation, err)
	}

	memory := strings.TrimSpace(req.MemorySummary)
	if memory == "" {
		memory = "(none)"
	}

	out, err := e.invoke(ctx, map[string]any{
		"input":   req.Text,
		"schema":  e.schemaDoc,
		"profile": string(profileJSON),
		"memory":  memory,
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("extraction degraded")
		return nil, fmt.Errorf("%w: %v", contractx.ErrDegradedExtraction, err)
	}

	return sanitizeResult(out), nil
}

// sanitizeResult converts the raw model output into a trusted
// ExtractionResult. Unknown retract names and overflow questions are dropped
// rather than rejected so one noisy field never fails the whole turn.
func sanitizeResult(out llmDelta) *contractx.ExtractionResult {
	delta := statex.ProfileDelta{
		EventType:   strings.TrimSpace(out.EventType),
		Location:    strings.TrimSpace(out.Location),
		GuestCount:  out.GuestCount,
		DateStart:   strings.TrimSpace(out.DateStart),
		DateEnd:     strings.TrimSpace(out.DateEnd),
		BudgetTier:  strings.TrimSpace(out.BudgetTier),
		StyleTags:   cleanList(out.StyleTags),
		Cuisine:     strings.TrimSpace(out.Cuisine),
		Constraints: cleanList(out.Constraints),
		Retract:     sanitizeRetract(out.Retract),
	}
	if len(out.Confidence) > 0 {
		delta.Confidence = make(map[statex.FieldName]float64, len(out.Confidence))
		for name, score := range out.Confidence {
			if f, ok := knownField(name); ok {
				delta.Confidence[f] = clamp01(score)
			}
		}
	}

	questions := cleanList(out.Questions)
	if len(questions) > maxFollowUpQuestions {
		questions = questions[:maxFollowUpQuestions]
	}

	return &contractx.ExtractionResult{
		Delta:             delta,
		ConfirmGeneration: out.ConfirmGeneration,
		PDFRequested:      out.PDFRequested,
		Questions:         questions,
		Reply:             strings.TrimSpace(out.Reply),
	}
}

func sanitizeRetract(names []string) []statex.FieldName {
	var out []statex.FieldName
	for _, name := range names {
		if f, ok := knownField(name); ok {
			out = append(out, f)
		}
	}
	return out
}

func knownField(name string) (statex.FieldName, bool) {
	switch f := statex.FieldName(strings.ToLower(strings.TrimSpace(name))); f {
	case statex.FieldEventType, statex.FieldLocation, statex.FieldGuestCount,
		statex.FieldDateWindow, statex.FieldBudgetTier, statex.FieldStyleTags,
		statex.FieldCuisine, statex.FieldConstraints:
		return f, true
	}
	return "", false
}

func cleanList(in []string) []string {
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || strings.EqualFold(v, "null") {
			continue
		}
		out = append(out, v)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// deltaSchemaJSON reflects the output shape into a JSON schema the model is
// shown inside the system prompt.
func deltaSchemaJSON() string {
	reflector := jsonschema.Reflector{DoNotReference: true}
	doc := reflector.Reflect(&llmDelta{})
	raw, err := json.Marshal(doc)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func compileExtractorGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, llmDelta], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)

	parser := schema.NewMessageJSONParser[llmDelta](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, llmDelta]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add extractor prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add extractor model node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.MessageParser(parser)); err != nil {
		return nil, fmt.Errorf("add extractor parser node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add extractor edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add extractor edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", "parse_json"); err != nil {
		return nil, fmt.Errorf("add extractor edge model->parse: %w", err)
	}
	if err := graph.AddEdge("parse_json", compose.END); err != nil {
		return nil, fmt.Errorf("add extractor edge parse->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("extract.delta_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile extractor graph: %w", err)
	}
	return runner, nil
}
