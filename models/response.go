package models

import (
	"time"

	"gorm.io/gorm"
)

// QuestionResponse records one participant's answer to one question.
// The unique index on (session_id, participant_id, question_id) backs
// the one-response-per-question invariant even under concurrent
// submissions; records are immutable once created.
type QuestionResponse struct {
	ID            string          `json:"id" gorm:"primaryKey"`
	SessionID     uint            `json:"session_id" gorm:"uniqueIndex:idx_one_response;not null"`
	ParticipantID string          `json:"participant_id" gorm:"uniqueIndex:idx_one_response;not null"`
	QuestionID    uint            `json:"question_id" gorm:"uniqueIndex:idx_one_response;not null"`
	Answer        SubmittedAnswer `json:"answer" gorm:"serializer:json"`
	IsCorrect     bool            `json:"is_correct" gorm:"not null"`
	Points        int             `json:"points" gorm:"not null"`
	TimeSpent     int             `json:"time_spent" gorm:"not null"` // seconds
	SubmittedAt   time.Time       `json:"submitted_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `json:"-" gorm:"index"`

	// Relationships
	Session     QuizSession `json:"session,omitempty" gorm:"foreignKey:SessionID"`
	Participant Participant `json:"participant,omitempty" gorm:"foreignKey:ParticipantID"`
	Question    Question    `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
}
