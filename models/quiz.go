package models

import (
	"time"

	"gorm.io/gorm"
)

type Quiz struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Title       string         `json:"title" gorm:"not null"`
	Description string         `json:"description"`
	CreatedBy   uint           `json:"created_by" gorm:"not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Creator   User          `json:"creator,omitempty" gorm:"foreignKey:CreatedBy"`
	Questions []Question    `json:"questions,omitempty" gorm:"foreignKey:QuizID"`
	Sessions  []QuizSession `json:"sessions,omitempty" gorm:"foreignKey:QuizID"`
}

// QuestionByID returns the question with the given id, or nil.
func (q *Quiz) QuestionByID(questionID uint) *Question {
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			return &q.Questions[i]
		}
	}
	return nil
}
