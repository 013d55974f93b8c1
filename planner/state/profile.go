package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jinzhu/copier"
)

// FieldName identifies one structured requirement on an event profile.
type FieldName string

const (
	FieldEventType   FieldName = "event_type"
	FieldLocation    FieldName = "location"
	FieldGuestCount  FieldName = "guest_count"
	FieldDateWindow  FieldName = "date_window"
	FieldBudgetTier  FieldName = "budget_tier"
	FieldStyleTags   FieldName = "style_tags"
	FieldCuisine     FieldName = "cuisine"
	FieldConstraints FieldName = "constraints"
)

type BudgetTier string

const (
	BudgetLow      BudgetTier = "low"
	BudgetStandard BudgetTier = "standard"
	BudgetPremium  BudgetTier = "premium"
	BudgetLuxury   BudgetTier = "luxury"
)

func ParseBudgetTier(s string) (BudgetTier, bool) {
	switch BudgetTier(strings.ToLower(strings.TrimSpace(s))) {
	case BudgetLow:
		return BudgetLow, true
	case BudgetStandard:
		return BudgetStandard, true
	case BudgetPremium:
		return BudgetPremium, true
	case BudgetLuxury:
		return BudgetLuxury, true
	}
	return "", false
}

type DateWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// EventProfile is the incrementally-built structured representation of the
// event requirements for one planning session. A zero value means "unknown"
// for every field; GuestCount 0 means the count has not been confirmed.
type EventProfile struct {
	EventType   string      `json:"event_type,omitempty"`
	Location    string      `json:"location,omitempty"`
	GuestCount  int         `json:"guest_count,omitempty"`
	Date        *DateWindow `json:"date_window,omitempty"`
	BudgetTier  BudgetTier  `json:"budget_tier,omitempty"`
	StyleTags   []string    `json:"style_tags,omitempty"`
	Cuisine     string      `json:"cuisine,omitempty"`
	Constraints []string    `json:"constraints,omitempty"`
}

// ProfileDelta is a partial update extracted from one chat turn. Only fields
// the extractor is confident about are populated; Retract lists fields the
// user explicitly walked back.
type ProfileDelta struct {
	EventType   string                `json:"event_type,omitempty"`
	Location    string                `json:"location,omitempty"`
	GuestCount  *int                  `json:"guest_count,omitempty"`
	DateStart   string                `json:"date_start,omitempty"`
	DateEnd     string                `json:"date_end,omitempty"`
	BudgetTier  string                `json:"budget_tier,omitempty"`
	StyleTags   []string              `json:"style_tags,omitempty"`
	Cuisine     string                `json:"cuisine,omitempty"`
	Constraints []string              `json:"constraints,omitempty"`
	Retract     []FieldName           `json:"retract,omitempty"`
	Confidence  map[FieldName]float64 `json:"confidence,omitempty"`
}

func (d ProfileDelta) Empty() bool {
	return strings.TrimSpace(d.EventType) == "" &&
		strings.TrimSpace(d.Location) == "" &&
		d.GuestCount == nil &&
		strings.TrimSpace(d.DateStart) == "" &&
		strings.TrimSpace(d.DateEnd) == "" &&
		strings.TrimSpace(d.BudgetTier) == "" &&
		len(d.StyleTags) == 0 &&
		strings.TrimSpace(d.Cuisine) == "" &&
		len(d.Constraints) == 0 &&
		len(d.Retract) == 0
}

var ErrInvariantViolation = errors.New("profile invariant violation")

// lowConfidenceCutoff is the extractor score below which a delta value is
// treated as a guess and ignored. Fields without a score pass through.
const lowConfidenceCutoff = 0.4

func (d ProfileDelta) confident(f FieldName) bool {
	score, ok := d.Confidence[f]
	return !ok || score >= lowConfidenceCutoff
}

// Apply merges a delta into the profile. Fields are only ever enriched;
// the single way to clear a confirmed field is an entry in delta.Retract,
// and values scored below lowConfidenceCutoff never land.
// Returns the names of fields that changed.
func (p *EventProfile) Apply(d ProfileDelta) ([]FieldName, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil profile", ErrInvariantViolation)
	}
	if d.GuestCount != nil && *d.GuestCount < 0 {
		return nil, fmt.Errorf("%w: guest count %d < 0", ErrInvariantViolation, *d.GuestCount)
	}

	var changed []FieldName

	for _, f := range d.Retract {
		if p.retract(f) {
			changed = append(changed, f)
		}
	}

	if v := cleanValue(d.EventType); v != "" && v != p.EventType && d.confident(FieldEventType) {
		p.EventType = v
		changed = append(changed, FieldEventType)
	}
	if v := cleanValue(d.Location); v != "" && v != p.Location && d.confident(FieldLocation) {
		p.Location = v
		changed = append(changed, FieldLocation)
	}
	if d.GuestCount != nil && *d.GuestCount > 0 && *d.GuestCount != p.GuestCount && d.confident(FieldGuestCount) {
		p.GuestCount = *d.GuestCount
		changed = append(changed, FieldGuestCount)
	}
	if w, ok := parseDateWindow(d.DateStart, d.DateEnd); ok && d.confident(FieldDateWindow) {
		if p.Date == nil || *p.Date != *w {
			p.Date = w
			changed = append(changed, FieldDateWindow)
		}
	}
	if tier, ok := ParseBudgetTier(d.BudgetTier); ok && tier != p.BudgetTier && d.confident(FieldBudgetTier) {
		p.BudgetTier = tier
		changed = append(changed, FieldBudgetTier)
	}
	if d.confident(FieldStyleTags) && mergeSet(&p.StyleTags, d.StyleTags) {
		changed = append(changed, FieldStyleTags)
	}
	if v := cleanValue(d.Cuisine); v != "" && v != p.Cuisine && d.confident(FieldCuisine) {
		p.Cuisine = v
		changed = append(changed, FieldCuisine)
	}
	if d.confident(FieldConstraints) && mergeSet(&p.Constraints, d.Constraints) {
		changed = append(changed, FieldConstraints)
	}

	return changed, nil
}

func (p *EventProfile) retract(f FieldName) bool {
	switch f {
	case FieldEventType:
		if p.EventType == "" {
			return false
		}
		p.EventType = ""
	case FieldLocation:
		if p.Location == "" {
			return false
		}
		p.Location = ""
	case FieldGuestCount:
		if p.GuestCount == 0 {
			return false
		}
		p.GuestCount = 0
	case FieldDateWindow:
		if p.Date == nil {
			return false
		}
		p.Date = nil
	case FieldBudgetTier:
		if p.BudgetTier == "" {
			return false
		}
		p.BudgetTier = ""
	case FieldStyleTags:
		if len(p.StyleTags) == 0 {
			return false
		}
		p.StyleTags = nil
	case FieldCuisine:
		if p.Cuisine == "" {
			return false
		}
		p.Cuisine = ""
	case FieldConstraints:
		if len(p.Constraints) == 0 {
			return false
		}
		p.Constraints = nil
	default:
		return false
	}
	return true
}

// Has reports whether the field has a confirmed value.
func (p *EventProfile) Has(f FieldName) bool {
	switch f {
	case FieldEventType:
		return p.EventType != ""
	case FieldLocation:
		return p.Location != ""
	case FieldGuestCount:
		return p.GuestCount > 0
	case FieldDateWindow:
		return p.Date != nil
	case FieldBudgetTier:
		return p.BudgetTier != ""
	case FieldStyleTags:
		return len(p.StyleTags) > 0
	case FieldCuisine:
		return p.Cuisine != ""
	case FieldConstraints:
		return len(p.Constraints) > 0
	}
	return false
}

// Snapshot returns a deep copy, detached from the receiver's slices.
func (p *EventProfile) Snapshot() EventProfile {
	var out EventProfile
	_ = copier.CopyWithOption(&out, p, copier.Option{DeepCopy: true})
	return out
}

func (p *EventProfile) Validate() error {
	if p.GuestCount < 0 {
		return fmt.Errorf("%w: guest count %d < 0", ErrInvariantViolation, p.GuestCount)
	}
	if p.BudgetTier != "" {
		if _, ok := ParseBudgetTier(string(p.BudgetTier)); !ok {
			return fmt.Errorf("%w: unknown budget tier %q", ErrInvariantViolation, p.BudgetTier)
		}
	}
	if p.Date != nil && !p.Date.End.IsZero() && p.Date.End.Before(p.Date.Start) {
		return fmt.Errorf("%w: date window ends before it starts", ErrInvariantViolation)
	}
	return nil
}

// HashFields returns a stable digest of the named fields' normalized values.
// Used to detect whether the profile materially changed for a generation kind
// since it was last generated.
func (p *EventProfile) HashFields(fields ...FieldName) string {
	canon := make(map[string]any, len(fields))
	for _, f := range fields {
		switch f {
		case FieldEventType:
			canon[string(f)] = strings.ToLower(p.EventType)
		case FieldLocation:
			canon[string(f)] = strings.ToLower(p.Location)
		case FieldGuestCount:
			canon[string(f)] = p.GuestCount
		case FieldDateWindow:
			if p.Date != nil {
				canon[string(f)] = []string{p.Date.Start.UTC().Format(time.RFC3339), p.Date.End.UTC().Format(time.RFC3339)}
			}
		case FieldBudgetTier:
			canon[string(f)] = string(p.BudgetTier)
		case FieldStyleTags:
			canon[string(f)] = sortedLower(p.StyleTags)
		case FieldCuisine:
			canon[string(f)] = strings.ToLower(p.Cuisine)
		case FieldConstraints:
			canon[string(f)] = sortedLower(p.Constraints)
		}
	}

	raw, err := json.Marshal(canon)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}

// cleanValue trims a string and discards the literal "null" some language
// models emit for absent values.
func cleanValue(s string) string {
	v := strings.TrimSpace(s)
	if strings.EqualFold(v, "null") || strings.EqualFold(v, "unknown") {
		return ""
	}
	return v
}

func mergeSet(dst *[]string, add []string) bool {
	if len(add) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(*dst))
	for _, v := range *dst {
		seen[strings.ToLower(v)] = struct{}{}
	}
	grew := false
	for _, v := range add {
		v = cleanValue(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		*dst = append(*dst, v)
		grew = true
	}
	return grew
}

func sortedLower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	sort.Strings(out)
	return out
}

func parseDateWindow(start, end string) (*DateWindow, bool) {
	s, okS := parseFlexibleTime(start)
	if !okS {
		return nil, false
	}
	w := &DateWindow{Start: s}
	if e, okE := parseFlexibleTime(end); okE {
		w.End = e
	}
	return w, true
}

func parseFlexibleTime(s string) (time.Time, bool) {
	s = cleanValue(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
