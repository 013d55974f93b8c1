// Package memory persists cross-turn conversation memory.
package memory

import (
	"strconv"
	"strings"
	"time"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

const maxActiveTopics = 8

// Merge folds an update into an existing record, keeping the newest summary
// and the union of topics and content refs. Blank and literal "null" values
// are dropped rather than stored.
func Merge(existing, update *contractx.MemoryRecord) *contractx.MemoryRecord {
	if update == nil {
		return existing
	}
	if existing == nil {
		clean := *update
		clean.Summary = cleanText(update.Summary)
		clean.ActiveTopics = cleanTopics(nil, update.ActiveTopics)
		return &clean
	}

	out := *existing
	if s := cleanText(update.Summary); s != "" {
		out.Summary = s
	}
	out.ActiveTopics = cleanTopics(existing.ActiveTopics, update.ActiveTopics)
	out.ContentRefs = mergeRefs(existing.ContentRefs, update.ContentRefs)
	if update.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = update.UpdatedAt
	}
	return &out
}

// Summarize builds the memory update for one completed turn.
func Summarize(st *statex.SessionState, envelope *contractx.GenerationEnvelope, now time.Time) *contractx.MemoryRecord {
	if st == nil {
		return nil
	}

	rec := &contractx.MemoryRecord{
		UserID:    st.UserID,
		SessionID: st.SessionID,
		Summary:   profileSummary(&st.Profile),
		UpdatedAt: now.UTC(),
	}

	if st.Stage == statex.StageReadyPending && !st.GenerationArmed {
		rec.ActiveTopics = append(rec.ActiveTopics, "awaiting generation confirmation")
	}
	if st.Stage == statex.StageCollecting {
		rec.ActiveTopics = append(rec.ActiveTopics, "collecting event details")
	}

	if envelope != nil {
		for _, img := range envelope.Images {
			rec.ContentRefs = append(rec.ContentRefs, contractx.ContentRef{Kind: contractx.KindImage, ID: img.ID, URL: img.URL})
		}
		for _, m := range envelope.Music {
			rec.ContentRefs = append(rec.ContentRefs, contractx.ContentRef{Kind: contractx.KindMusic, ID: m.ID, URL: m.PreviewURL})
		}
		for _, v := range envelope.Venues {
			rec.ContentRefs = append(rec.ContentRefs, contractx.ContentRef{Kind: contractx.KindVenue, ID: v.ID})
		}
		for _, f := range envelope.Food {
			rec.ContentRefs = append(rec.ContentRefs, contractx.ContentRef{Kind: contractx.KindFood, ID: f.ID})
		}
	}

	return rec
}

func profileSummary(p *statex.EventProfile) string {
	var parts []string
	if p.EventType != "" {
		parts = append(parts, "planning a "+p.EventType)
	}
	if p.Location != "" {
		parts = append(parts, "in "+p.Location)
	}
	if p.GuestCount > 0 {
		parts = append(parts, "for around "+strconv.Itoa(p.GuestCount)+" guests")
	}
	if len(p.StyleTags) > 0 {
		parts = append(parts, "style: "+strings.Join(p.StyleTags, ", "))
	}
	if p.Cuisine != "" {
		parts = append(parts, "cuisine: "+p.Cuisine)
	}
	if p.BudgetTier != "" {
		parts = append(parts, "budget: "+string(p.BudgetTier))
	}
	if len(parts) == 0 {
		return "new planning conversation, no confirmed details yet"
	}
	return strings.Join(parts, ", ")
}

func cleanText(s string) string {
	v := strings.TrimSpace(s)
	if strings.EqualFold(v, "null") {
		return ""
	}
	return v
}

func cleanTopics(existing, add []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(add))
	out := make([]string, 0, len(existing)+len(add))
	for _, lists := range [][]string{existing, add} {
		for _, topic := range lists {
			topic = cleanText(topic)
			if topic == "" {
				continue
			}
			key := strings.ToLower(topic)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, topic)
		}
	}
	if len(out) > maxActiveTopics {
		out = out[len(out)-maxActiveTopics:]
	}
	return out
}

func mergeRefs(existing, add []contractx.ContentRef) []contractx.ContentRef {
	seen := make(map[string]struct{}, len(existing)+len(add))
	out := make([]contractx.ContentRef, 0, len(existing)+len(add))
	for _, lists := range [][]contractx.ContentRef{existing, add} {
		for _, ref := range lists {
			if ref.ID == "" {
				continue
			}
			key := string(ref.Kind) + ":" + ref.ID
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, ref)
		}
	}
	return out
}
