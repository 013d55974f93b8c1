package dispatch

import (
	"fmt"
	"strings"

	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

// ImagePrompt renders the confirmed profile into one image-generation prompt.
// Only confirmed fields appear; the model fills in the rest.
func ImagePrompt(profile statex.EventProfile) string {
	var b strings.Builder

	eventType := profile.EventType
	if eventType == "" {
		eventType = "celebration"
	}
	fmt.Fprintf(&b, "Event inspiration photo for a %s", eventType)

	if profile.Location != "" {
		fmt.Fprintf(&b, " in %s", profile.Location)
	}
	if profile.GuestCount > 0 {
		fmt.Fprintf(&b, " for about %d guests", profile.GuestCount)
	}
	if len(profile.StyleTags) > 0 {
		fmt.Fprintf(&b, ", %s style", strings.Join(profile.StyleTags, ", "))
	}
	switch profile.BudgetTier {
	case statex.BudgetPremium, statex.BudgetLuxury:
		b.WriteString(", upscale and elegant")
	case statex.BudgetLow:
		b.WriteString(", charming and budget-friendly")
	}
	b.WriteString(". Realistic, warm lighting, no text or watermarks.")

	return b.String()
}
