package models

import (
	"encoding/json"
	"strings"
)

// SubmittedAnswer is a tagged union over the answer shapes the five
// question types produce: a single choice, an ordered list of fills,
// or a left-to-right column mapping. Exactly one field is set; the
// scoring engine picks the field matching the question type.
type SubmittedAnswer struct {
	Choice  string            `json:"choice,omitempty"`
	Fills   []string          `json:"fills,omitempty"`
	Matches map[string]string `json:"matches,omitempty"`
}

// Empty reports whether no answer content was submitted at all.
func (a SubmittedAnswer) Empty() bool {
	return a.Choice == "" && len(a.Fills) == 0 && len(a.Matches) == 0
}

// PairMatches returns the column mapping, decoding the legacy
// "left=right" pair encoding from Fills when Matches is unset. Clients
// that predate the tagged encoding send match answers as a string array.
func (a SubmittedAnswer) PairMatches() map[string]string {
	if len(a.Matches) > 0 {
		return a.Matches
	}
	if len(a.Fills) == 0 {
		return nil
	}
	m := make(map[string]string, len(a.Fills))
	for _, pair := range a.Fills {
		left, right, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		m[left] = right
	}
	return m
}

// UnmarshalJSON accepts the tagged object form plus the legacy wire
// forms: a bare string (choice) and an array of strings (fills, or
// "left=right" pairs for match-columns).
func (a *SubmittedAnswer) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(trimmed, `"`):
		return json.Unmarshal(data, &a.Choice)
	case strings.HasPrefix(trimmed, "["):
		return json.Unmarshal(data, &a.Fills)
	}

	type tagged SubmittedAnswer
	var t tagged
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	*a = SubmittedAnswer(t)
	return nil
}
