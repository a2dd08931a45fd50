package models

import (
	"time"

	"gorm.io/gorm"
)

// Participant connectivity states.
const (
	ParticipantConnected    = "connected"
	ParticipantDisconnected = "disconnected"
)

// Participant identity is the generated id, never the display name: two
// students in one session may share a name.
type Participant struct {
	ID                   string         `json:"id" gorm:"primaryKey"`
	SessionID            uint           `json:"session_id" gorm:"index;not null"`
	Name                 string         `json:"name" gorm:"not null"`
	JoinedAt             time.Time      `json:"joined_at"`
	Status               string         `json:"status" gorm:"not null;default:'connected'"`
	CurrentQuestionIndex int            `json:"current_question_index" gorm:"not null;default:0"`
	Score                int            `json:"score" gorm:"not null;default:0"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Session QuizSession `json:"session,omitempty" gorm:"foreignKey:SessionID"`
}
