package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSubmittedAnswerUnmarshalTagged(t *testing.T) {
	var a SubmittedAnswer
	err := json.Unmarshal([]byte(`{"choice":"true"}`), &a)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a.Choice != "true" {
		t.Errorf("expected choice %q, got %q", "true", a.Choice)
	}
}

func TestSubmittedAnswerUnmarshalBareString(t *testing.T) {
	var a SubmittedAnswer
	err := json.Unmarshal([]byte(`"Paris"`), &a)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a.Choice != "Paris" {
		t.Errorf("expected choice %q, got %q", "Paris", a.Choice)
	}
}

func TestSubmittedAnswerUnmarshalBareArray(t *testing.T) {
	var a SubmittedAnswer
	err := json.Unmarshal([]byte(`["mitochondria","ribosome"]`), &a)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(a.Fills) != 2 || a.Fills[0] != "mitochondria" {
		t.Errorf("unexpected fills: %v", a.Fills)
	}
}

func TestPairMatchesPrefersTaggedForm(t *testing.T) {
	a := SubmittedAnswer{
		Matches: map[string]string{"H2O": "water"},
		Fills:   []string{"H2O=ice"},
	}
	if got := a.PairMatches()["H2O"]; got != "water" {
		t.Errorf("expected tagged matches to win, got %q", got)
	}
}

func TestPairMatchesDecodesLegacyPairs(t *testing.T) {
	a := SubmittedAnswer{Fills: []string{"H2O=water", "NaCl=salt", "malformed"}}
	m := a.PairMatches()
	if len(m) != 2 {
		t.Fatalf("expected 2 pairs, got %d: %v", len(m), m)
	}
	if m["H2O"] != "water" || m["NaCl"] != "salt" {
		t.Errorf("unexpected mapping: %v", m)
	}
}

func TestSubmittedAnswerEmpty(t *testing.T) {
	if !(SubmittedAnswer{}).Empty() {
		t.Error("zero value should be empty")
	}
	if (SubmittedAnswer{Choice: "a"}).Empty() {
		t.Error("answer with choice should not be empty")
	}
}

func TestQuestionPublicStripsAnswers(t *testing.T) {
	q := Question{
		ID:             7,
		Type:           QuestionMatchColumns,
		Prompt:         "Match the capitals",
		CorrectAnswer:  "secret",
		CorrectMatches: map[string]string{"France": "Paris", "Chile": "Santiago"},
		Points:         10,
		TimeLimit:      30,
	}

	pub := q.Public()
	data, err := json.Marshal(pub)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := strings.ToLower(string(data))
	for _, leak := range []string{"correct", "secret"} {
		if strings.Contains(body, leak) {
			t.Errorf("public question leaks %q: %s", leak, body)
		}
	}
	if len(pub.MatchLeft) != 2 || len(pub.MatchRight) != 2 {
		t.Errorf("expected both columns with 2 items, got %v / %v", pub.MatchLeft, pub.MatchRight)
	}
}
