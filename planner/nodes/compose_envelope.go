package plannernode

import (
	"fmt"
	"sort"
	"strings"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
)

// ComposeEnvelope assembles the turn's output bundle. The flags are derived
// from what actually happened, never from what was intended: refresh_gallery
// is set only when fresh content is attached.
func ComposeEnvelope(in *GraphState) (*GraphState, error) {
	if in == nil || in.Session == nil || in.Extraction == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}

	env := &contractx.GenerationEnvelope{
		AttemptID: in.AttemptID,
		SessionID: in.SessionID,
		CreatedAt: in.Now,
	}

	if frag := in.Fragment; frag != nil {
		env.Images = frag.Images
		env.Music = frag.Music
		env.Venues = frag.Venues
		env.Food = frag.Food
		if len(frag.Unavailable) > 0 {
			env.Unavailable = frag.Unavailable
		}
	}

	env.Flags = composeFlags(in, env)
	env.Reply = composeReply(in, env)
	env.Flags.PDFRequested = in.Extraction.PDFRequested

	in.Envelope = env
	return in, nil
}

func composeFlags(in *GraphState, env *contractx.GenerationEnvelope) contractx.EnvelopeFlags {
	flags := contractx.EnvelopeFlags{
		RefreshGallery:  env.HasContent(),
		ReadyToGenerate: in.Decision.Ready(),
	}

	switch {
	case in.Fragment != nil && env.HasContent() && len(in.Fragment.Unavailable) == 0:
		flags.GenerationStatus = contractx.GenerationStatusGenerated
	case in.Fragment != nil && env.HasContent():
		flags.GenerationStatus = contractx.GenerationStatusPartial
	case in.Fragment != nil:
		flags.GenerationStatus = contractx.GenerationStatusUnavailable
		flags.DeferralReason = "all content providers were unavailable"
	case in.Decision.Ready() && !in.Session.GenerationArmed:
		flags.GenerationStatus = contractx.GenerationStatusSkipped
		flags.DeferralReason = "waiting for user confirmation"
	default:
		flags.GenerationStatus = contractx.GenerationStatusIdle
	}

	return flags
}

func composeReply(in *GraphState, env *contractx.GenerationEnvelope) string {
	if in.Extraction.Degraded {
		return "I had trouble understanding that just now. Could you rephrase, or tell me one detail at a time?"
	}

	if env.HasContent() {
		return generatedSummary(in, env)
	}

	if in.Fragment != nil {
		return "I tried to put your ideas together but the generation services are struggling right now. Your details are saved, so just ask me again in a moment."
	}

	if in.Decision.Ready() && !in.Session.GenerationArmed {
		return readyPrompt(in)
	}

	if len(in.Extraction.Questions) > 0 {
		reply := strings.TrimSpace(in.Extraction.Reply)
		questions := strings.Join(in.Extraction.Questions, " ")
		if reply != "" {
			return reply + " " + questions
		}
		return questions
	}

	if reply := strings.TrimSpace(in.Extraction.Reply); reply != "" {
		return reply
	}

	if in.Session.TurnCount <= 1 {
		return "Hi! I help plan events. Tell me what you're celebrating and I'll start putting ideas together."
	}
	return "Got it. Tell me more about your event, or say the word when you want me to generate ideas."
}

func generatedSummary(in *GraphState, env *contractx.GenerationEnvelope) string {
	var parts []string
	if n := len(env.Images); n > 0 {
		parts = append(parts, fmt.Sprintf("%d inspiration images", n))
	}
	if n := len(env.Music); n > 0 {
		parts = append(parts, fmt.Sprintf("%d music picks", n))
	}
	if n := len(env.Venues); n > 0 {
		parts = append(parts, fmt.Sprintf("%d venue ideas", n))
	}
	if n := len(env.Food); n > 0 {
		parts = append(parts, fmt.Sprintf("%d food suggestions", n))
	}

	reply := "Here you go: " + strings.Join(parts, ", ") + " for your " + eventLabel(in) + "."
	if len(env.Unavailable) > 0 {
		var failed []string
		for kind := range env.Unavailable {
			failed = append(failed, string(kind))
		}
		sort.Strings(failed)
		reply += " I couldn't fetch " + strings.Join(failed, " and ") + " this time, ask me again in a bit."
	}
	return reply
}

func readyPrompt(in *GraphState) string {
	return "I have enough to start generating ideas for your " + eventLabel(in) +
		". Want me to go ahead?"
}

func eventLabel(in *GraphState) string {
	if et := strings.TrimSpace(in.Session.Profile.EventType); et != "" {
		return et
	}
	return "event"
}
