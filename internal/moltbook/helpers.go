package moltbook

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Registration field limits enforced before calling the API.
const (
	MinNameLen        = 2
	MaxNameLen        = 30
	MinDescriptionLen = 10
	MaxDescriptionLen = 500
)

// ValidateRegistration checks name and description lengths.
func ValidateRegistration(name, description string) error {
	if n := utf8.RuneCountInString(name); n < MinNameLen || n > MaxNameLen {
		return fmt.Errorf("name must be %d-%d characters, got %d", MinNameLen, MaxNameLen, n)
	}
	if n := utf8.RuneCountInString(description); n < MinDescriptionLen || n > MaxDescriptionLen {
		return fmt.Errorf("description must be %d-%d characters, got %d", MinDescriptionLen, MaxDescriptionLen, n)
	}
	return nil
}

// StatusText renders a claim status for people.
func StatusText(status string) string {
	switch status {
	case "":
		return "Unknown"
	case "claimed":
		return "Verified"
	case "pending_claim":
		return "Pending Claim"
	}
	return status
}

// FilterSubmolts keeps the submolts whose name, display name or description
// contains query, ignoring case. A blank query keeps everything.
func FilterSubmolts(list []Submolt, query string) []Submolt {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return list
	}
	var out []Submolt
	for _, m := range list {
		desc := ""
		if m.Description != nil {
			desc = *m.Description
		}
		hay := strings.ToLower(m.Name + " " + m.DisplayName + " " + desc)
		if strings.Contains(hay, q) {
			out = append(out, m)
		}
	}
	return out
}
