package models

import (
	"time"

	"gorm.io/gorm"
)

// Session lifecycle states. Transitions are owned by the state machine
// in the services package; completed is terminal.
const (
	SessionWaiting   = "waiting"
	SessionActive    = "active"
	SessionPaused    = "paused"
	SessionCompleted = "completed"
)

// CodeLength is the length of a join code.
const CodeLength = 6

type QuizSession struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	QuizID uint `json:"quiz_id" gorm:"not null"`
	// Code is unique among sessions in a live status; completed sessions
	// release their code for reuse, so there is no DB-level unique index.
	Code                 string     `json:"code" gorm:"index;not null"`
	Status               string     `json:"status" gorm:"not null;default:'waiting'"`
	CurrentQuestionIndex int        `json:"current_question_index" gorm:"not null;default:0"`
	StartTime            *time.Time `json:"start_time"`
	EndTime              *time.Time `json:"end_time"`
	CreatedBy            uint       `json:"created_by" gorm:"not null"`
	// Version guards teacher control writes against lost updates; every
	// transition write is conditional on the version it read.
	Version   int            `json:"version" gorm:"not null;default:0"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Quiz         Quiz               `json:"quiz,omitempty"`
	Participants []Participant      `json:"participants,omitempty" gorm:"foreignKey:SessionID"`
	Responses    []QuestionResponse `json:"responses,omitempty" gorm:"foreignKey:SessionID"`
}

// Live reports whether the session still holds its join code, i.e. its
// status is anything but completed.
func (s *QuizSession) Live() bool {
	return s.Status != SessionCompleted
}

// LiveStatuses are the statuses a join code collides against.
var LiveStatuses = []string{SessionWaiting, SessionActive, SessionPaused}
