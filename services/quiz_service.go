package services

import (
	"fmt"

	"quizdeck/models"

	"gorm.io/gorm"
)

type QuizService struct {
	db *gorm.DB
}

func NewQuizService(db *gorm.DB) *QuizService {
	return &QuizService{db: db}
}

type CreateQuizRequest struct {
	Title       string                  `json:"title" binding:"required"`
	Description string                  `json:"description"`
	Questions   []CreateQuestionRequest `json:"questions" binding:"required,min=1"`
}

type CreateQuestionRequest struct {
	Type           string            `json:"type" binding:"required"`
	Prompt         string            `json:"prompt" binding:"required"`
	Options        []string          `json:"options"`
	CorrectAnswer  string            `json:"correct_answer"`
	CorrectFills   []string          `json:"correct_fills"`
	CorrectMatches map[string]string `json:"correct_matches"`
	Points         int               `json:"points" binding:"required,min=1"`
	TimeLimit      int               `json:"time_limit" binding:"omitempty,min=5,max=300"`
	Order          int               `json:"order"`
}

type UpdateQuizRequest struct {
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Questions   []CreateQuestionRequest `json:"questions"`
}

func (s *QuizService) CreateQuiz(userID uint, req *CreateQuizRequest) (*models.Quiz, error) {
	for i := range req.Questions {
		if err := validateQuestion(&req.Questions[i]); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	quiz := models.Quiz{
		Title:       req.Title,
		Description: req.Description,
		CreatedBy:   userID,
	}
	if err := tx.Create(&quiz).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for i, qReq := range req.Questions {
		question := buildQuestion(quiz.ID, i, qReq)
		if err := tx.Create(&question).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return s.GetQuizByID(quiz.ID, userID)
}

func (s *QuizService) GetUserQuizzes(userID uint) ([]models.Quiz, error) {
	var quizzes []models.Quiz
	err := s.db.Where("created_by = ?", userID).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order(`questions."order"`)
		}).
		Order("created_at DESC").
		Find(&quizzes).Error
	return quizzes, err
}

func (s *QuizService) GetQuizByID(quizID uint, userID uint) (*models.Quiz, error) {
	var quiz models.Quiz
	err := s.db.Where("id = ? AND created_by = ?", quizID, userID).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order(`questions."order"`)
		}).
		First(&quiz).Error
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrQuizNotFound
	}
	return &quiz, err
}

func (s *QuizService) UpdateQuiz(quizID uint, userID uint, req *UpdateQuizRequest) (*models.Quiz, error) {
	quiz, err := s.GetQuizByID(quizID, userID)
	if err != nil {
		return nil, err
	}

	if req.Questions != nil {
		for i := range req.Questions {
			if err := validateQuestion(&req.Questions[i]); err != nil {
				return nil, fmt.Errorf("question %d: %w", i+1, err)
			}
		}
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if req.Title != "" {
		quiz.Title = req.Title
	}
	if req.Description != "" {
		quiz.Description = req.Description
	}
	if err := tx.Save(quiz).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	// Questions are replaced wholesale; running sessions read the live
	// quiz, so edits mid-session show up on the next question.
	if req.Questions != nil {
		if err := tx.Where("quiz_id = ?", quizID).Delete(&models.Question{}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		for i, qReq := range req.Questions {
			question := buildQuestion(quiz.ID, i, qReq)
			if err := tx.Create(&question).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return s.GetQuizByID(quiz.ID, userID)
}

func (s *QuizService) DeleteQuiz(quizID uint, userID uint) error {
	if _, err := s.GetQuizByID(quizID, userID); err != nil {
		return err
	}
	return s.db.Delete(&models.Quiz{}, quizID).Error
}

func buildQuestion(quizID uint, index int, req CreateQuestionRequest) models.Question {
	order := req.Order
	if order == 0 {
		order = index + 1
	}
	timeLimit := req.TimeLimit
	if timeLimit == 0 {
		timeLimit = models.DefaultTimeLimit
	}
	return models.Question{
		QuizID:         quizID,
		Type:           req.Type,
		Prompt:         req.Prompt,
		Options:        req.Options,
		CorrectAnswer:  req.CorrectAnswer,
		CorrectFills:   req.CorrectFills,
		CorrectMatches: req.CorrectMatches,
		Points:         req.Points,
		TimeLimit:      timeLimit,
		Order:          order,
	}
}

// validateQuestion enforces the per-type shape rules at authoring time.
// The scoring engine relies on these holding and does not re-validate.
func validateQuestion(req *CreateQuestionRequest) error {
	if req.Points <= 0 {
		return fmt.Errorf("points must be positive")
	}

	switch req.Type {
	case models.QuestionTrueFalse:
		if req.CorrectAnswer != "true" && req.CorrectAnswer != "false" {
			return fmt.Errorf("true-false answer must be %q or %q", "true", "false")
		}

	case models.QuestionMultipleChoice:
		if len(req.Options) < 2 {
			return fmt.Errorf("multiple-choice needs at least 2 options")
		}
		seen := make(map[string]bool, len(req.Options))
		answerListed := false
		for _, opt := range req.Options {
			if seen[opt] {
				return fmt.Errorf("duplicate option %q", opt)
			}
			seen[opt] = true
			if opt == req.CorrectAnswer {
				answerListed = true
			}
		}
		if !answerListed {
			return fmt.Errorf("correct answer must be one of the options")
		}

	case models.QuestionMatchColumns:
		if len(req.CorrectMatches) == 0 {
			return fmt.Errorf("match-columns needs at least one pairing")
		}

	case models.QuestionFillInBlank:
		blanks := countBlanks(req.Prompt)
		if blanks == 0 {
			return fmt.Errorf("fill-in-blank prompt has no %s markers", models.BlankMarker)
		}
		if len(req.CorrectFills) != blanks {
			return fmt.Errorf("expected %d fills for %d blanks, got %d", blanks, blanks, len(req.CorrectFills))
		}

	case models.QuestionOpenText:
		// No reference answer; graded manually.

	default:
		return fmt.Errorf("unknown question type %q", req.Type)
	}
	return nil
}

func countBlanks(prompt string) int {
	q := models.Question{Prompt: prompt}
	return q.BlankCount()
}
