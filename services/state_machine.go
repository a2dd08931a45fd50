package services

import (
	"fmt"
	"time"

	"quizdeck/models"
)

// StateMachine validates and applies session lifecycle transitions:
//
//	waiting -> active -> paused -> active -> completed
//
// completed is terminal. The machine only mutates the passed session
// struct; persisting the change (with the optimistic version check) is
// the caller's job.
type StateMachine struct {
	// Now is injectable for deterministic timestamps in tests.
	Now func() time.Time
}

func NewStateMachine() StateMachine {
	return StateMachine{Now: time.Now}
}

// Start moves a waiting session to active and stamps the start time.
func (m StateMachine) Start(s *models.QuizSession) error {
	if s.Status != models.SessionWaiting {
		return fmt.Errorf("start from %q: %w", s.Status, models.ErrInvalidTransition)
	}
	now := m.Now()
	s.Status = models.SessionActive
	s.StartTime = &now
	return nil
}

// Pause suspends an active session.
func (m StateMachine) Pause(s *models.QuizSession) error {
	if s.Status != models.SessionActive {
		return fmt.Errorf("pause from %q: %w", s.Status, models.ErrInvalidTransition)
	}
	s.Status = models.SessionPaused
	return nil
}

// Resume reactivates a paused session.
func (m StateMachine) Resume(s *models.QuizSession) error {
	if s.Status != models.SessionPaused {
		return fmt.Errorf("resume from %q: %w", s.Status, models.ErrInvalidTransition)
	}
	s.Status = models.SessionActive
	return nil
}

// Advance moves an active session to the next question. At the last
// question it degrades to End: finishing the quiz completes the session,
// there is no "finished but not completed" state. The returned bool
// reports whether the session ended.
func (m StateMachine) Advance(s *models.QuizSession, totalQuestions int) (bool, error) {
	if s.Status != models.SessionActive {
		return false, fmt.Errorf("advance from %q: %w", s.Status, models.ErrInvalidTransition)
	}
	if s.CurrentQuestionIndex >= totalQuestions-1 {
		if err := m.End(s); err != nil {
			return false, err
		}
		return true, nil
	}
	s.CurrentQuestionIndex++
	return false, nil
}

// Retreat moves an active session back one question. Already at the
// first question it is a no-op, not an error.
func (m StateMachine) Retreat(s *models.QuizSession) error {
	if s.Status != models.SessionActive {
		return fmt.Errorf("retreat from %q: %w", s.Status, models.ErrInvalidTransition)
	}
	if s.CurrentQuestionIndex > 0 {
		s.CurrentQuestionIndex--
	}
	return nil
}

// End completes a session from any non-terminal status and stamps the
// end time. The caller must persist it through the end-session batch so
// participants are bulk-disconnected in the same write.
func (m StateMachine) End(s *models.QuizSession) error {
	if s.Status == models.SessionCompleted {
		return fmt.Errorf("end from %q: %w", s.Status, models.ErrInvalidTransition)
	}
	now := m.Now()
	s.Status = models.SessionCompleted
	s.EndTime = &now
	return nil
}
