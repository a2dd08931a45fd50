package services

import (
	"strings"

	"quizdeck/models"
)

// ScoreResult is the outcome of scoring one submitted answer.
type ScoreResult struct {
	IsCorrect bool `json:"is_correct"`
	Points    int  `json:"points"`
}

// Score grades a submitted answer against a question's reference
// answer. Pure and deterministic: no I/O, same inputs always produce
// the same result.
//
// Per type:
//   - true-false / multiple-choice: exact string equality.
//   - match-columns: reference coverage — every reference pairing must
//     be present and equal; extraneous pairings are ignored.
//   - fill-in-blank: same length as the reference, each element equal
//     after trimming, case-insensitively, in order.
//   - open-text: always correct with full points; real grading is a
//     manual teacher review, the flag only keeps the response from
//     rendering as wrong.
func Score(q *models.Question, answer models.SubmittedAnswer) ScoreResult {
	correct := false

	switch q.Type {
	case models.QuestionTrueFalse, models.QuestionMultipleChoice:
		correct = answer.Choice != "" && answer.Choice == q.CorrectAnswer

	case models.QuestionMatchColumns:
		correct = coversReference(q.CorrectMatches, answer.PairMatches())

	case models.QuestionFillInBlank:
		correct = fillsMatch(q.CorrectFills, answer.Fills)

	case models.QuestionOpenText:
		correct = true
	}

	result := ScoreResult{IsCorrect: correct}
	if correct {
		result.Points = q.Points
	}
	return result
}

// coversReference checks that every reference pairing appears in the
// submission. An empty reference never matches: a match-columns
// question without pairings is an authoring error, not a free point.
func coversReference(reference, submitted map[string]string) bool {
	if len(reference) == 0 {
		return false
	}
	for left, right := range reference {
		if submitted[left] != right {
			return false
		}
	}
	return true
}

func fillsMatch(reference, submitted []string) bool {
	if len(submitted) != len(reference) {
		return false
	}
	for i, expected := range reference {
		if !strings.EqualFold(strings.TrimSpace(submitted[i]), strings.TrimSpace(expected)) {
			return false
		}
	}
	return true
}
