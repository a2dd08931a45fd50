package models

import (
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Question types supported by the quiz builder. The set is closed: the
// scoring engine and the authoring validation both switch over it.
const (
	QuestionTrueFalse      = "true-false"
	QuestionMultipleChoice = "multiple-choice"
	QuestionMatchColumns   = "match-columns"
	QuestionOpenText       = "open-text"
	QuestionFillInBlank    = "fill-in-blank"
)

// BlankMarker is the substring that marks a blank inside a
// fill-in-blank prompt.
const BlankMarker = "___"

// DefaultTimeLimit is the per-question countdown in seconds when the
// author does not set one.
const DefaultTimeLimit = 30

type Question struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	QuizID uint   `json:"quiz_id" gorm:"not null"`
	Type   string `json:"type" gorm:"not null"`
	Prompt string `json:"prompt" gorm:"not null"`
	// Options is the answer choices for multiple-choice questions.
	Options []string `json:"options,omitempty" gorm:"serializer:json"`
	// CorrectAnswer holds the reference answer for true-false and
	// multiple-choice questions.
	CorrectAnswer string `json:"correct_answer,omitempty"`
	// CorrectFills holds the expected fill for each blank, in prompt order.
	CorrectFills []string `json:"correct_fills,omitempty" gorm:"serializer:json"`
	// CorrectMatches maps each left-column item to its right-column item.
	CorrectMatches map[string]string `json:"correct_matches,omitempty" gorm:"serializer:json"`
	Points         int               `json:"points" gorm:"not null"`
	TimeLimit      int               `json:"time_limit" gorm:"not null;default:30"` // seconds
	Order          int               `json:"order" gorm:"not null"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	DeletedAt      gorm.DeletedAt    `json:"-" gorm:"index"`

	// Relationships
	Quiz Quiz `json:"quiz,omitempty"`
}

// BlankCount returns the number of blank markers in the prompt.
func (q *Question) BlankCount() int {
	return strings.Count(q.Prompt, BlankMarker)
}

// PublicQuestion is the view of a question pushed to students while a
// session is live. Reference answers are intentionally omitted.
type PublicQuestion struct {
	ID        uint     `json:"id"`
	Type      string   `json:"type"`
	Prompt    string   `json:"prompt"`
	Options   []string `json:"options,omitempty"`
	MatchLeft []string `json:"match_left,omitempty"`
	// MatchRight is the shuffled-order pool of right-column items.
	MatchRight []string `json:"match_right,omitempty"`
	Points     int      `json:"points"`
	TimeLimit  int      `json:"time_limit"`
}

// Public strips the reference answers from a question for broadcast to
// participants.
func (q *Question) Public() PublicQuestion {
	pub := PublicQuestion{
		ID:        q.ID,
		Type:      q.Type,
		Prompt:    q.Prompt,
		Options:   q.Options,
		Points:    q.Points,
		TimeLimit: q.TimeLimit,
	}
	if q.Type == QuestionMatchColumns {
		for left, right := range q.CorrectMatches {
			pub.MatchLeft = append(pub.MatchLeft, left)
			pub.MatchRight = append(pub.MatchRight, right)
		}
		// Map iteration order already decouples the two columns, but keep
		// the output stable for clients.
		sort.Strings(pub.MatchLeft)
		sort.Strings(pub.MatchRight)
	}
	return pub
}
