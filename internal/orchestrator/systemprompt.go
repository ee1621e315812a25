package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"turncore/internal/store"
)

// verbatimClause is the fixed trailing instruction named in §4.5: "A fixed
// trailing clause instructs the model to use tool results verbatim (no
// approximation of numeric values)."
const verbatimClause = "When a tool or search result supplies a specific value (a number, a date, a name), repeat it exactly as given. Never round, estimate, or paraphrase a reported value."

// defaultSystemPrompt is synthesized when the Conversation's configured
// Prompt is empty (§4.5: "If the original system prompt is empty, a minimal
// default is synthesized.").
const defaultSystemPrompt = "You are a helpful assistant."

// buildSystemPrompt implements §4.5's "System prompt enhancement": prefix
// the configured prompt with a compact user-context block derived from
// UserProfile honoring its privacy flags, then append the verbatim clause.
func buildSystemPrompt(prompt store.Prompt, profile store.UserProfile, now time.Time) string {
	base := strings.TrimSpace(prompt.Content)
	if base == "" {
		base = defaultSystemPrompt
	}

	block := userContextBlock(profile, now)
	if block == "" {
		return base + "\n\n" + verbatimClause
	}
	return block + "\n\n" + base + "\n\n" + verbatimClause
}

// userContextBlock renders the subset of profile fields not hidden by its
// privacy flags, one fact per line (§4.5: "name, location, coordinates, W3W,
// timezone, current date/time in that timezone, personal-station
// identifier, unit preference, personality hint").
func userContextBlock(profile store.UserProfile, now time.Time) string {
	var lines []string

	if !profile.Privacy.HideName && strings.TrimSpace(profile.DisplayName) != "" {
		lines = append(lines, "User's name: "+profile.DisplayName)
	}
	if !profile.Privacy.HideLocation && strings.TrimSpace(profile.HomeAddress) != "" {
		lines = append(lines, "User's home location: "+profile.HomeAddress)
	}
	if !profile.Privacy.HideCoordinates && (profile.Latitude != 0 || profile.Longitude != 0) {
		lines = append(lines, fmt.Sprintf("User's coordinates: %.5f, %.5f", profile.Latitude, profile.Longitude))
	}
	if !profile.Privacy.HideW3W && strings.TrimSpace(profile.What3Words) != "" {
		lines = append(lines, "User's what3words address: "+profile.What3Words)
	}
	if strings.TrimSpace(profile.Timezone) != "" {
		lines = append(lines, "User's timezone: "+profile.Timezone)
		lines = append(lines, "Current date/time for the user: "+currentTimeIn(profile.Timezone, now))
	}
	if !profile.Privacy.HideStation && strings.TrimSpace(profile.StationID) != "" {
		lines = append(lines, "User's personal weather station id: "+profile.StationID)
	}
	if profile.UnitsImperial {
		lines = append(lines, "Report measurements in imperial units (°F, mph, miles).")
	} else {
		lines = append(lines, "Report measurements in metric units (°C, km/h, kilometers).")
	}
	if strings.TrimSpace(profile.PersonalityHint) != "" {
		lines = append(lines, "Personality hint: "+profile.PersonalityHint)
	}

	if len(lines) == 0 {
		return ""
	}
	return "User context:\n" + strings.Join(lines, "\n")
}

func currentTimeIn(tz string, now time.Time) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return now.UTC().Format(time.RFC1123)
	}
	return now.In(loc).Format(time.RFC1123)
}
