package store

import (
	"context"

	"quizdeck/models"
)

// Store is the persistence and real-time push boundary the session
// engine depends on. It is a typed rendering of a generic
// collection/record API: three collections (sessions, participants,
// responses) plus read access to quizzes, with per-record updates,
// filtered queries, one atomic batch (EndSession), and full-snapshot
// subscriptions. Any backend works as long as every write is followed
// by a snapshot push to the matching subscribers.
type Store interface {
	// Quizzes (read-only from the engine's side; authoring goes through
	// the quiz service).
	GetQuiz(ctx context.Context, quizID uint) (*models.Quiz, error)

	// Sessions.
	CreateSession(ctx context.Context, session *models.QuizSession) error
	GetSession(ctx context.Context, sessionID uint) (*models.QuizSession, error)
	// GetSessionByCode resolves a code case-insensitively, preferring a
	// live session; a completed session is returned only when no live
	// session holds the code.
	GetSessionByCode(ctx context.Context, code string) (*models.QuizSession, error)
	// CodeInUse reports whether a live session currently holds the code.
	CodeInUse(ctx context.Context, code string) (bool, error)
	// UpdateSessionGuarded writes the session's mutable fields
	// conditionally on the version the caller read. A lost race returns
	// models.ErrInvalidTransition; on success the version is bumped both
	// in the record and in the passed struct.
	UpdateSessionGuarded(ctx context.Context, session *models.QuizSession) error
	SessionsByTeacher(ctx context.Context, teacherID uint) ([]models.QuizSession, error)
	// EndSessionBatch applies the terminal transition and the bulk
	// participant disconnect as one atomic write.
	EndSessionBatch(ctx context.Context, session *models.QuizSession) error

	// Participants.
	CreateParticipant(ctx context.Context, p *models.Participant) error
	GetParticipant(ctx context.Context, participantID string) (*models.Participant, error)
	SetParticipantStatus(ctx context.Context, participantID, status string) error
	AddParticipantScore(ctx context.Context, participantID string, points int) error
	ListParticipants(ctx context.Context, sessionID uint) ([]models.Participant, error)

	// Responses.
	// CreateResponse returns models.ErrAlreadyAnswered when a response
	// for the same (session, participant, question) already exists.
	CreateResponse(ctx context.Context, r *models.QuestionResponse) error
	HasResponse(ctx context.Context, sessionID uint, participantID string, questionID uint) (bool, error)
	ListResponses(ctx context.Context, sessionID uint, questionID uint) ([]models.QuestionResponse, error)
	ListSessionResponses(ctx context.Context, sessionID uint) ([]models.QuestionResponse, error)

	// LiveState returns the session-plus-participants snapshot for a join
	// code. Backends may serve it from a cache refreshed on every write.
	LiveState(ctx context.Context, code string) (*SessionState, error)

	// Subscriptions push the full current snapshot after every change to
	// the watched records. The cancel func must be called on teardown.
	SubscribeSession(sessionID uint) (<-chan models.QuizSession, func())
	SubscribeParticipants(sessionID uint) (<-chan []models.Participant, func())
	SubscribeResponses(sessionID uint, questionID uint) (<-chan []models.QuestionResponse, func())
}
