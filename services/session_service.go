package services

import (
	"context"
	"net/url"
	"strings"
	"time"

	"quizdeck/models"
	"quizdeck/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionService is the composition root of the live-session engine. It
// wires the code generator, state machine, scoring and the store behind
// the operations the teacher dashboard and the student quiz view call.
type SessionService struct {
	store   store.Store
	codes   *CodeGenerator
	machine StateMachine
	log     *zap.Logger
}

func NewSessionService(s store.Store, log *zap.Logger) *SessionService {
	return &SessionService{
		store:   s,
		codes:   NewCodeGenerator(s),
		machine: NewStateMachine(),
		log:     log,
	}
}

// SessionStats summarizes a session for the teacher dashboard.
type SessionStats struct {
	TotalParticipants   int `json:"total_participants"`
	ActiveParticipants  int `json:"active_participants"`
	TotalResponses      int `json:"total_responses"`
	AverageResponseTime int `json:"average_response_time"` // seconds, rounded
}

// CreateSession creates a waiting session for a quiz the teacher owns,
// under a freshly generated unique join code.
func (s *SessionService) CreateSession(ctx context.Context, quizID, teacherID uint) (*models.QuizSession, error) {
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.CreatedBy != teacherID {
		return nil, models.ErrQuizNotFound
	}

	code, err := s.codes.GenerateUnique(ctx)
	if err != nil {
		return nil, err
	}

	session := &models.QuizSession{
		QuizID:               quizID,
		Code:                 code,
		Status:               models.SessionWaiting,
		CurrentQuestionIndex: 0,
		CreatedBy:            teacherID,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.log.Info("session created",
		zap.Uint("session_id", session.ID),
		zap.Uint("quiz_id", quizID),
		zap.String("code", code))
	return session, nil
}

// JoinSession resolves a join code (case-insensitively) and registers a
// new connected participant. Completed sessions reject joins; duplicate
// display names within a session are allowed, identity is the generated
// id.
func (s *SessionService) JoinSession(ctx context.Context, code, name string, hub *Hub) (*models.Participant, *models.QuizSession, error) {
	session, err := s.store.GetSessionByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, nil, err
	}
	if !session.Live() {
		return nil, nil, models.ErrSessionEnded
	}

	participant := &models.Participant{
		ID:                   uuid.NewString(),
		SessionID:            session.ID,
		Name:                 name,
		JoinedAt:             time.Now(),
		Status:               models.ParticipantConnected,
		CurrentQuestionIndex: 0,
		Score:                0,
	}
	if err := s.store.CreateParticipant(ctx, participant); err != nil {
		return nil, nil, err
	}

	s.log.Info("participant joined",
		zap.Uint("session_id", session.ID),
		zap.String("participant_id", participant.ID),
		zap.String("name", name))

	s.broadcastParticipants(ctx, session, hub)
	return participant, session, nil
}

// StartSession moves a waiting session to active.
func (s *SessionService) StartSession(ctx context.Context, sessionID, teacherID uint, hub *Hub) (*models.QuizSession, error) {
	return s.control(ctx, sessionID, teacherID, hub, func(session *models.QuizSession) (bool, error) {
		return false, s.machine.Start(session)
	})
}

// PauseSession suspends an active session.
func (s *SessionService) PauseSession(ctx context.Context, sessionID, teacherID uint, hub *Hub) (*models.QuizSession, error) {
	return s.control(ctx, sessionID, teacherID, hub, func(session *models.QuizSession) (bool, error) {
		return false, s.machine.Pause(session)
	})
}

// ResumeSession reactivates a paused session.
func (s *SessionService) ResumeSession(ctx context.Context, sessionID, teacherID uint, hub *Hub) (*models.QuizSession, error) {
	return s.control(ctx, sessionID, teacherID, hub, func(session *models.QuizSession) (bool, error) {
		return false, s.machine.Resume(session)
	})
}

// AdvanceQuestion moves to the next question; at the last question the
// session completes instead.
func (s *SessionService) AdvanceQuestion(ctx context.Context, sessionID, teacherID uint, hub *Hub) (*models.QuizSession, error) {
	return s.control(ctx, sessionID, teacherID, hub, func(session *models.QuizSession) (bool, error) {
		quiz, err := s.store.GetQuiz(ctx, session.QuizID)
		if err != nil {
			return false, err
		}
		return s.machine.Advance(session, len(quiz.Questions))
	})
}

// RetreatQuestion moves back one question; a no-op at the first.
func (s *SessionService) RetreatQuestion(ctx context.Context, sessionID, teacherID uint, hub *Hub) (*models.QuizSession, error) {
	return s.control(ctx, sessionID, teacherID, hub, func(session *models.QuizSession) (bool, error) {
		return false, s.machine.Retreat(session)
	})
}

// EndSession completes the session and bulk-disconnects every
// participant in the same atomic write.
func (s *SessionService) EndSession(ctx context.Context, sessionID, teacherID uint, hub *Hub) (*models.QuizSession, error) {
	return s.control(ctx, sessionID, teacherID, hub, func(session *models.QuizSession) (bool, error) {
		return true, s.machine.End(session)
	})
}

// control runs one teacher action: ownership check, transition, guarded
// persist, broadcast. Transitions that end the session go through the
// end-session batch so the participant bulk-disconnect is atomic.
func (s *SessionService) control(ctx context.Context, sessionID, teacherID uint, hub *Hub,
	apply func(*models.QuizSession) (bool, error)) (*models.QuizSession, error) {

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.CreatedBy != teacherID {
		return nil, models.ErrNotSessionOwner
	}

	ended, err := apply(session)
	if err != nil {
		return nil, err
	}

	if ended {
		err = s.store.EndSessionBatch(ctx, session)
	} else {
		err = s.store.UpdateSessionGuarded(ctx, session)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("session transition",
		zap.Uint("session_id", session.ID),
		zap.String("status", session.Status),
		zap.Int("question_index", session.CurrentQuestionIndex))

	s.broadcastSession(session, hub)
	if ended {
		s.broadcastParticipants(ctx, session, hub)
		if hub != nil {
			hub.BroadcastToSession(session.Code, "session_end", gin.H{
				"session_id": session.ID,
				"end_time":   session.EndTime,
			})
		}
	}
	return session, nil
}

// SubmitResponse records one participant's answer to one question. The
// ledger guarantees at most one response per (participant, question):
// duplicates get ErrAlreadyAnswered, first write wins. Late answers are
// accepted as long as the session has not completed; the per-question
// countdown is enforced client-side only.
func (s *SessionService) SubmitResponse(ctx context.Context, sessionID uint, participantID string, questionID uint,
	answer models.SubmittedAnswer, timeSpent int, hub *Hub) (*models.QuestionResponse, error) {

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Live() {
		return nil, models.ErrSessionEnded
	}

	participant, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if participant.SessionID != sessionID {
		return nil, models.ErrParticipantNotFound
	}

	// Precondition read; the unique index catches the race this misses.
	answered, err := s.store.HasResponse(ctx, sessionID, participantID, questionID)
	if err != nil {
		return nil, err
	}
	if answered {
		return nil, models.ErrAlreadyAnswered
	}

	quiz, err := s.store.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return nil, err
	}
	question := quiz.QuestionByID(questionID)
	if question == nil {
		return nil, models.ErrQuestionNotFound
	}

	if timeSpent <= 0 {
		timeSpent = question.TimeLimit
	}

	result := Score(question, answer)
	response := &models.QuestionResponse{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		ParticipantID: participantID,
		QuestionID:    questionID,
		Answer:        answer,
		IsCorrect:     result.IsCorrect,
		Points:        result.Points,
		TimeSpent:     timeSpent,
		SubmittedAt:   time.Now(),
	}
	if err := s.store.CreateResponse(ctx, response); err != nil {
		return nil, err
	}

	if result.IsCorrect && result.Points > 0 {
		if err := s.store.AddParticipantScore(ctx, participantID, result.Points); err != nil {
			return nil, err
		}
	}

	s.log.Info("response submitted",
		zap.Uint("session_id", sessionID),
		zap.String("participant_id", participantID),
		zap.Uint("question_id", questionID),
		zap.Bool("correct", result.IsCorrect),
		zap.Int("points", result.Points))

	if hub != nil {
		if responses, err := s.store.ListResponses(ctx, sessionID, questionID); err == nil {
			hub.BroadcastToSession(session.Code, "responses_update", gin.H{
				"question_id": questionID,
				"responses":   responses,
			})
		}
	}
	s.broadcastParticipants(ctx, session, hub)

	return response, nil
}

// SetParticipantStatus is the idempotent connect/disconnect lifecycle
// update driven by the websocket layer.
func (s *SessionService) SetParticipantStatus(ctx context.Context, participantID, status string, hub *Hub) error {
	participant, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	if participant.Status == status {
		return nil
	}
	if err := s.store.SetParticipantStatus(ctx, participantID, status); err != nil {
		return err
	}
	if session, err := s.store.GetSession(ctx, participant.SessionID); err == nil {
		s.broadcastParticipants(ctx, session, hub)
	}
	return nil
}

// GetSession fetches one session by id.
func (s *SessionService) GetSession(ctx context.Context, sessionID uint) (*models.QuizSession, error) {
	return s.store.GetSession(ctx, sessionID)
}

// GetSessionByCode fetches one session by its join code.
func (s *SessionService) GetSessionByCode(ctx context.Context, code string) (*models.QuizSession, error) {
	return s.store.GetSessionByCode(ctx, code)
}

// LiveState returns the session-plus-participants snapshot for a code,
// cache-first on backends that keep one.
func (s *SessionService) LiveState(ctx context.Context, code string) (*store.SessionState, error) {
	return s.store.LiveState(ctx, code)
}

// Participants lists a session's participants in join order.
func (s *SessionService) Participants(ctx context.Context, sessionID uint) ([]models.Participant, error) {
	return s.store.ListParticipants(ctx, sessionID)
}

// Responses lists all responses for one question of a session.
func (s *SessionService) Responses(ctx context.Context, sessionID, questionID uint) ([]models.QuestionResponse, error) {
	return s.store.ListResponses(ctx, sessionID, questionID)
}

// TeacherSessions lists a teacher's sessions, newest first.
func (s *SessionService) TeacherSessions(ctx context.Context, teacherID uint) ([]models.QuizSession, error) {
	return s.store.SessionsByTeacher(ctx, teacherID)
}

// SubscribeToSession pushes a full session snapshot on every change.
// The returned func must be called to release the subscription.
func (s *SessionService) SubscribeToSession(sessionID uint) (<-chan models.QuizSession, func()) {
	return s.store.SubscribeSession(sessionID)
}

// SubscribeToParticipants pushes the full participant list on every change.
func (s *SessionService) SubscribeToParticipants(sessionID uint) (<-chan []models.Participant, func()) {
	return s.store.SubscribeParticipants(sessionID)
}

// SubscribeToQuestionResponses pushes the full response list for one
// question on every change; subscribers tally aggregates themselves.
func (s *SessionService) SubscribeToQuestionResponses(sessionID, questionID uint) (<-chan []models.QuestionResponse, func()) {
	return s.store.SubscribeResponses(sessionID, questionID)
}

// SessionStats aggregates participation numbers for the dashboard.
func (s *SessionService) SessionStats(ctx context.Context, sessionID uint) (*SessionStats, error) {
	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.ListSessionResponses(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	stats := &SessionStats{
		TotalParticipants: len(participants),
		TotalResponses:    len(responses),
	}
	for _, p := range participants {
		if p.Status == models.ParticipantConnected {
			stats.ActiveParticipants++
		}
	}
	if len(responses) > 0 {
		total := 0
		for _, r := range responses {
			total += r.TimeSpent
		}
		stats.AverageResponseTime = (total + len(responses)/2) / len(responses)
	}
	return stats, nil
}

// CurrentQuestion returns the sanitized view of the session's current
// question for broadcast to participants.
func (s *SessionService) CurrentQuestion(ctx context.Context, session *models.QuizSession) (*models.PublicQuestion, error) {
	quiz, err := s.store.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return nil, err
	}
	if session.CurrentQuestionIndex < 0 || session.CurrentQuestionIndex >= len(quiz.Questions) {
		return nil, models.ErrQuestionNotFound
	}
	pub := quiz.Questions[session.CurrentQuestionIndex].Public()
	return &pub, nil
}

// ResolveJoinCode extracts a session code from a scanned QR payload:
// either a join URL of the form <origin>/student?code=<CODE> or a bare
// 6-character alphanumeric code. The result is normalized to uppercase.
func (s *SessionService) ResolveJoinCode(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	code := payload
	if strings.Contains(payload, "://") {
		u, err := url.Parse(payload)
		if err != nil {
			return "", models.ErrInvalidJoinCode
		}
		code = u.Query().Get("code")
	}
	code = strings.ToUpper(code)
	if !validCode(code) {
		return "", models.ErrInvalidJoinCode
	}
	return code, nil
}

func validCode(code string) bool {
	if len(code) != models.CodeLength {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func (s *SessionService) broadcastSession(session *models.QuizSession, hub *Hub) {
	if hub == nil {
		return
	}
	hub.BroadcastToSession(session.Code, "session_update", gin.H{
		"session": session,
	})
}

func (s *SessionService) broadcastParticipants(ctx context.Context, session *models.QuizSession, hub *Hub) {
	if hub == nil {
		return
	}
	participants, err := s.store.ListParticipants(ctx, session.ID)
	if err != nil {
		s.log.Error("failed to list participants for broadcast",
			zap.Uint("session_id", session.ID), zap.Error(err))
		return
	}
	hub.BroadcastToSession(session.Code, "participants_update", gin.H{
		"participants": participants,
	})
}
