package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"quizdeck/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	changeChannel = "quizdeck:changes"
	liveStateTTL  = 2 * time.Hour
)

// SessionState is the live snapshot cached in Redis under the session
// code, served to reconnecting websocket clients without a DB round trip.
type SessionState struct {
	Session      models.QuizSession   `json:"session"`
	Participants []models.Participant `json:"participants"`
}

// changeEvent is the cross-instance invalidation message. Origin lets an
// instance skip events for writes it already fanned out locally.
type changeEvent struct {
	Kind       string `json:"kind"` // session | participants | responses
	SessionID  uint   `json:"session_id"`
	QuestionID uint   `json:"question_id,omitempty"`
	Origin     string `json:"origin"`
}

// GormStore persists to Postgres through gorm and keeps the live-session
// snapshot in Redis. Every write triggers a local full-snapshot fan-out
// plus a Redis publish so other instances re-query and do the same.
type GormStore struct {
	db         *gorm.DB
	redis      *redis.Client
	log        *zap.Logger
	instanceID string
	notifier   *notifier
}

func NewGormStore(db *gorm.DB, redisClient *redis.Client, log *zap.Logger) *GormStore {
	return &GormStore{
		db:         db,
		redis:      redisClient,
		log:        log,
		instanceID: uuid.NewString(),
		notifier:   newNotifier(),
	}
}

func (s *GormStore) GetQuiz(ctx context.Context, quizID uint) (*models.Quiz, error) {
	var quiz models.Quiz
	err := s.readRetry(func() error {
		return s.db.WithContext(ctx).
			Preload("Questions", func(db *gorm.DB) *gorm.DB {
				return db.Order(`questions."order"`)
			}).
			First(&quiz, quizID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrQuizNotFound
	}
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (s *GormStore) CreateSession(ctx context.Context, session *models.QuizSession) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return err
	}
	s.touchSession(ctx, session.ID)
	return nil
}

func (s *GormStore) GetSession(ctx context.Context, sessionID uint) (*models.QuizSession, error) {
	var session models.QuizSession
	err := s.readRetry(func() error {
		return s.db.WithContext(ctx).First(&session, sessionID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *GormStore) GetSessionByCode(ctx context.Context, code string) (*models.QuizSession, error) {
	code = strings.ToUpper(code)
	var session models.QuizSession
	err := s.readRetry(func() error {
		return s.db.WithContext(ctx).
			Where("UPPER(code) = ? AND status IN ?", code, models.LiveStatuses).
			First(&session).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Codes are reusable after completion; fall back to the most
		// recent completed holder so joins can report SessionEnded.
		err = s.readRetry(func() error {
			return s.db.WithContext(ctx).
				Where("UPPER(code) = ?", code).
				Order("created_at DESC").
				First(&session).Error
		})
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *GormStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.readRetry(func() error {
		return s.db.WithContext(ctx).Model(&models.QuizSession{}).
			Where("UPPER(code) = ? AND status IN ?", strings.ToUpper(code), models.LiveStatuses).
			Count(&count).Error
	})
	return count > 0, err
}

func (s *GormStore) UpdateSessionGuarded(ctx context.Context, session *models.QuizSession) error {
	result := s.db.WithContext(ctx).Model(&models.QuizSession{}).
		Where("id = ? AND version = ?", session.ID, session.Version).
		Updates(map[string]interface{}{
			"status":                 session.Status,
			"current_question_index": session.CurrentQuestionIndex,
			"start_time":             session.StartTime,
			"end_time":               session.EndTime,
			"version":                session.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Someone else wrote the session between our read and this
		// write; the caller's view is stale.
		return models.ErrInvalidTransition
	}
	session.Version++
	s.touchSession(ctx, session.ID)
	return nil
}

func (s *GormStore) SessionsByTeacher(ctx context.Context, teacherID uint) ([]models.QuizSession, error) {
	var sessions []models.QuizSession
	err := s.readRetry(func() error {
		return s.db.WithContext(ctx).
			Where("created_by = ?", teacherID).
			Order("updated_at DESC").
			Find(&sessions).Error
	})
	return sessions, err
}

func (s *GormStore) EndSessionBatch(ctx context.Context, session *models.QuizSession) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.QuizSession{}).
			Where("id = ? AND version = ?", session.ID, session.Version).
			Updates(map[string]interface{}{
				"status":   session.Status,
				"end_time": session.EndTime,
				"version":  session.Version + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrInvalidTransition
		}
		return tx.Model(&models.Participant{}).
			Where("session_id = ?", session.ID).
			Update("status", models.ParticipantDisconnected).Error
	})
	if err != nil {
		return err
	}
	session.Version++
	s.touchSession(ctx, session.ID)
	s.touchParticipants(ctx, session.ID)
	return nil
}

func (s *GormStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return err
	}
	s.touchParticipants(ctx, p.SessionID)
	return nil
}

func (s *GormStore) GetParticipant(ctx context.Context, participantID string) (*models.Participant, error) {
	var p models.Participant
	err := s.readRetry(func() error {
		return s.db.WithContext(ctx).First(&p, "id = ?", participantID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrParticipantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) SetParticipantStatus(ctx context.Context, participantID, status string) error {
	p, err := s.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&models.Participant{}).
		Where("id = ?", participantID).
		Update("status", status).Error; err != nil {
		return err
	}
	s.touchParticipants(ctx, p.SessionID)
	return nil
}

func (s *GormStore) AddParticipantScore(ctx context.Context, participantID string, points int) error {
	p, err := s.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&models.Participant{}).
		Where("id = ?", participantID).
		Update("score", gorm.Expr("score + ?", points)).Error; err != nil {
		return err
	}
	s.touchParticipants(ctx, p.SessionID)
	return nil
}

func (s *GormStore) ListParticipants(ctx context.Context, sessionID uint) ([]models.Participant, error) {
	var participants []models.Participant
	err := s.readRetry(func() error {
		return s.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("joined_at ASC").
			Find(&participants).Error
	})
	return participants, err
}

func (s *GormStore) CreateResponse(ctx context.Context, r *models.QuestionResponse) error {
	err := s.db.WithContext(ctx).Create(r).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// The unique index on (session, participant, question) caught a
		// concurrent duplicate the precondition read missed.
		return models.ErrAlreadyAnswered
	}
	if err != nil {
		return err
	}
	s.touchResponses(ctx, r.SessionID, r.QuestionID)
	return nil
}

func (s *GormStore) HasResponse(ctx context.Context, sessionID uint, participantID string, questionID uint) (bool, error) {
	var count int64
	err := s.readRetry(func() error {
		return s.db.WithContext(ctx).Model(&models.QuestionResponse{}).
			Where("session_id = ? AND participant_id = ? AND question_id = ?", sessionID, participantID, questionID).
			Count(&count).Error
	})
	return count > 0, err
}

func (s *GormStore) ListResponses(ctx context.Context, sessionID uint, questionID uint) ([]models.QuestionResponse, error) {
	var responses []models.QuestionResponse
	err := s.readRetry(func() error {
		return s.db.WithContext(ctx).
			Where("session_id = ? AND question_id = ?", sessionID, questionID).
			Order("submitted_at ASC").
			Find(&responses).Error
	})
	return responses, err
}

func (s *GormStore) ListSessionResponses(ctx context.Context, sessionID uint) ([]models.QuestionResponse, error) {
	var responses []models.QuestionResponse
	err := s.readRetry(func() error {
		return s.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("submitted_at ASC").
			Find(&responses).Error
	})
	return responses, err
}

func (s *GormStore) SubscribeSession(sessionID uint) (<-chan models.QuizSession, func()) {
	return s.notifier.subscribeSession(sessionID)
}

func (s *GormStore) SubscribeParticipants(sessionID uint) (<-chan []models.Participant, func()) {
	return s.notifier.subscribeParticipants(sessionID)
}

func (s *GormStore) SubscribeResponses(sessionID uint, questionID uint) (<-chan []models.QuestionResponse, func()) {
	return s.notifier.subscribeResponses(sessionID, questionID)
}

// LiveState returns the cached session snapshot for a code, falling back
// to the database and refilling the cache on a miss.
func (s *GormStore) LiveState(ctx context.Context, code string) (*SessionState, error) {
	code = strings.ToUpper(code)
	if state := s.getCachedState(ctx, code); state != nil {
		return state, nil
	}

	session, err := s.GetSessionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	participants, err := s.ListParticipants(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	state := &SessionState{Session: *session, Participants: participants}
	s.cacheState(ctx, state)
	return state, nil
}

func (s *GormStore) cacheState(ctx context.Context, state *SessionState) {
	data, err := json.Marshal(state)
	if err != nil {
		s.log.Error("failed to marshal session state", zap.Error(err))
		return
	}
	if err := s.redis.Set(ctx, s.stateKey(state.Session.Code), data, liveStateTTL).Err(); err != nil {
		s.log.Warn("failed to cache session state",
			zap.String("code", state.Session.Code), zap.Error(err))
	}
}

func (s *GormStore) getCachedState(ctx context.Context, code string) *SessionState {
	data, err := s.redis.Get(ctx, s.stateKey(code)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("redis error reading session state", zap.String("code", code), zap.Error(err))
		}
		return nil
	}
	var state SessionState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		s.log.Warn("failed to unmarshal cached session state", zap.String("code", code), zap.Error(err))
		return nil
	}
	return &state
}

func (s *GormStore) stateKey(code string) string {
	return "session:" + strings.ToUpper(code)
}

// touchSession re-reads the session, refreshes the Redis snapshot, fans
// the new snapshot out locally and publishes the change for peers.
func (s *GormStore) touchSession(ctx context.Context, sessionID uint) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		s.log.Error("failed to reload session after write", zap.Uint("session_id", sessionID), zap.Error(err))
		return
	}
	s.notifier.publishSession(*session)
	s.refreshCache(ctx, session)
	s.publishChange(ctx, changeEvent{Kind: "session", SessionID: sessionID, Origin: s.instanceID})
}

func (s *GormStore) touchParticipants(ctx context.Context, sessionID uint) {
	participants, err := s.ListParticipants(ctx, sessionID)
	if err != nil {
		s.log.Error("failed to reload participants after write", zap.Uint("session_id", sessionID), zap.Error(err))
		return
	}
	s.notifier.publishParticipants(sessionID, participants)
	if session, err := s.GetSession(ctx, sessionID); err == nil {
		s.cacheState(ctx, &SessionState{Session: *session, Participants: participants})
	}
	s.publishChange(ctx, changeEvent{Kind: "participants", SessionID: sessionID, Origin: s.instanceID})
}

func (s *GormStore) touchResponses(ctx context.Context, sessionID, questionID uint) {
	responses, err := s.ListResponses(ctx, sessionID, questionID)
	if err != nil {
		s.log.Error("failed to reload responses after write",
			zap.Uint("session_id", sessionID), zap.Uint("question_id", questionID), zap.Error(err))
		return
	}
	s.notifier.publishResponses(sessionID, questionID, responses)
	s.publishChange(ctx, changeEvent{Kind: "responses", SessionID: sessionID, QuestionID: questionID, Origin: s.instanceID})
}

func (s *GormStore) refreshCache(ctx context.Context, session *models.QuizSession) {
	participants, err := s.ListParticipants(ctx, session.ID)
	if err != nil {
		s.log.Warn("failed to load participants for cache refresh", zap.Uint("session_id", session.ID), zap.Error(err))
		participants = nil
	}
	s.cacheState(ctx, &SessionState{Session: *session, Participants: participants})
}

func (s *GormStore) publishChange(ctx context.Context, event changeEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.redis.Publish(ctx, changeChannel, data).Err(); err != nil {
		s.log.Warn("failed to publish change event", zap.Error(err))
	}
}

// Listen consumes change events published by other instances and
// re-queries so local subscribers see writes made anywhere. Blocks until
// the context is cancelled; run it in a goroutine.
func (s *GormStore) Listen(ctx context.Context) {
	sub := s.redis.Subscribe(ctx, changeChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event changeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.log.Warn("dropping malformed change event", zap.Error(err))
				continue
			}
			if event.Origin == s.instanceID {
				continue // already fanned out locally at write time
			}
			switch event.Kind {
			case "session":
				if session, err := s.GetSession(ctx, event.SessionID); err == nil {
					s.notifier.publishSession(*session)
				}
			case "participants":
				if participants, err := s.ListParticipants(ctx, event.SessionID); err == nil {
					s.notifier.publishParticipants(event.SessionID, participants)
				}
			case "responses":
				if responses, err := s.ListResponses(ctx, event.SessionID, event.QuestionID); err == nil {
					s.notifier.publishResponses(event.SessionID, event.QuestionID, responses)
				}
			}
		}
	}
}

// readRetry retries a read once on transient failure. Writes are never
// auto-retried; the caller decides whether a retry is safe.
func (s *GormStore) readRetry(fn func() error) error {
	err := fn()
	if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	s.log.Warn("retrying read after transient store error", zap.Error(err))
	if retryErr := fn(); retryErr == nil || errors.Is(retryErr, gorm.ErrRecordNotFound) {
		return retryErr
	}
	return fmt.Errorf("store read failed after retry: %w", err)
}
