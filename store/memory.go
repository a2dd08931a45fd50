package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"quizdeck/models"
)

// Memory is a mutex-guarded in-memory Store. It backs the engine tests
// and doubles as a single-process deployment backend; snapshots are
// pushed through the same notifier the gorm store uses.
type Memory struct {
	mu           sync.RWMutex
	nextID       uint
	quizzes      map[uint]models.Quiz
	sessions     map[uint]models.QuizSession
	participants map[string]models.Participant
	responses    map[string]models.QuestionResponse

	notifier *notifier
}

func NewMemory() *Memory {
	return &Memory{
		quizzes:      make(map[uint]models.Quiz),
		sessions:     make(map[uint]models.QuizSession),
		participants: make(map[string]models.Participant),
		responses:    make(map[string]models.QuestionResponse),
		notifier:     newNotifier(),
	}
}

// AddQuiz seeds a quiz for tests.
func (m *Memory) AddQuiz(quiz models.Quiz) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[quiz.ID] = quiz
}

func (m *Memory) GetQuiz(_ context.Context, quizID uint) (*models.Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	quiz, ok := m.quizzes[quizID]
	if !ok {
		return nil, models.ErrQuizNotFound
	}
	return &quiz, nil
}

func (m *Memory) CreateSession(_ context.Context, session *models.QuizSession) error {
	m.mu.Lock()
	m.nextID++
	session.ID = m.nextID
	m.sessions[session.ID] = *session
	m.mu.Unlock()
	m.notifier.publishSession(*session)
	return nil
}

func (m *Memory) GetSession(_ context.Context, sessionID uint) (*models.QuizSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return &session, nil
}

func (m *Memory) GetSessionByCode(_ context.Context, code string) (*models.QuizSession, error) {
	code = strings.ToUpper(code)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var completed *models.QuizSession
	for id := range m.sessions {
		session := m.sessions[id]
		if !strings.EqualFold(session.Code, code) {
			continue
		}
		if session.Live() {
			return &session, nil
		}
		if completed == nil || session.CreatedAt.After(completed.CreatedAt) {
			completed = &session
		}
	}
	if completed != nil {
		return completed, nil
	}
	return nil, models.ErrSessionNotFound
}

func (m *Memory) CodeInUse(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, session := range m.sessions {
		if session.Live() && strings.EqualFold(session.Code, code) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) UpdateSessionGuarded(_ context.Context, session *models.QuizSession) error {
	m.mu.Lock()
	current, ok := m.sessions[session.ID]
	if !ok {
		m.mu.Unlock()
		return models.ErrSessionNotFound
	}
	if current.Version != session.Version {
		m.mu.Unlock()
		return models.ErrInvalidTransition
	}
	session.Version++
	m.sessions[session.ID] = *session
	snapshot := *session
	m.mu.Unlock()
	m.notifier.publishSession(snapshot)
	return nil
}

func (m *Memory) SessionsByTeacher(_ context.Context, teacherID uint) ([]models.QuizSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.QuizSession
	for _, session := range m.sessions {
		if session.CreatedBy == teacherID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *Memory) EndSessionBatch(_ context.Context, session *models.QuizSession) error {
	m.mu.Lock()
	current, ok := m.sessions[session.ID]
	if !ok {
		m.mu.Unlock()
		return models.ErrSessionNotFound
	}
	if current.Version != session.Version {
		m.mu.Unlock()
		return models.ErrInvalidTransition
	}
	session.Version++
	m.sessions[session.ID] = *session
	for id, p := range m.participants {
		if p.SessionID == session.ID {
			p.Status = models.ParticipantDisconnected
			m.participants[id] = p
		}
	}
	snapshot := *session
	participants := m.participantsLocked(session.ID)
	m.mu.Unlock()

	m.notifier.publishSession(snapshot)
	m.notifier.publishParticipants(session.ID, participants)
	return nil
}

func (m *Memory) CreateParticipant(_ context.Context, p *models.Participant) error {
	m.mu.Lock()
	m.participants[p.ID] = *p
	participants := m.participantsLocked(p.SessionID)
	m.mu.Unlock()
	m.notifier.publishParticipants(p.SessionID, participants)
	return nil
}

func (m *Memory) GetParticipant(_ context.Context, participantID string) (*models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.participants[participantID]
	if !ok {
		return nil, models.ErrParticipantNotFound
	}
	return &p, nil
}

func (m *Memory) SetParticipantStatus(_ context.Context, participantID, status string) error {
	m.mu.Lock()
	p, ok := m.participants[participantID]
	if !ok {
		m.mu.Unlock()
		return models.ErrParticipantNotFound
	}
	p.Status = status
	m.participants[participantID] = p
	participants := m.participantsLocked(p.SessionID)
	m.mu.Unlock()
	m.notifier.publishParticipants(p.SessionID, participants)
	return nil
}

func (m *Memory) AddParticipantScore(_ context.Context, participantID string, points int) error {
	m.mu.Lock()
	p, ok := m.participants[participantID]
	if !ok {
		m.mu.Unlock()
		return models.ErrParticipantNotFound
	}
	p.Score += points
	m.participants[participantID] = p
	participants := m.participantsLocked(p.SessionID)
	m.mu.Unlock()
	m.notifier.publishParticipants(p.SessionID, participants)
	return nil
}

func (m *Memory) ListParticipants(_ context.Context, sessionID uint) ([]models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.participantsLocked(sessionID), nil
}

func (m *Memory) participantsLocked(sessionID uint) []models.Participant {
	var out []models.Participant
	for _, p := range m.participants {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

func (m *Memory) CreateResponse(_ context.Context, r *models.QuestionResponse) error {
	m.mu.Lock()
	for _, existing := range m.responses {
		if existing.SessionID == r.SessionID &&
			existing.ParticipantID == r.ParticipantID &&
			existing.QuestionID == r.QuestionID {
			m.mu.Unlock()
			return models.ErrAlreadyAnswered
		}
	}
	m.responses[r.ID] = *r
	responses := m.responsesLocked(r.SessionID, r.QuestionID)
	m.mu.Unlock()
	m.notifier.publishResponses(r.SessionID, r.QuestionID, responses)
	return nil
}

func (m *Memory) HasResponse(_ context.Context, sessionID uint, participantID string, questionID uint) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.responses {
		if r.SessionID == sessionID && r.ParticipantID == participantID && r.QuestionID == questionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListResponses(_ context.Context, sessionID uint, questionID uint) ([]models.QuestionResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.responsesLocked(sessionID, questionID), nil
}

func (m *Memory) ListSessionResponses(_ context.Context, sessionID uint) ([]models.QuestionResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.QuestionResponse
	for _, r := range m.responses {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (m *Memory) responsesLocked(sessionID, questionID uint) []models.QuestionResponse {
	var out []models.QuestionResponse
	for _, r := range m.responses {
		if r.SessionID == sessionID && r.QuestionID == questionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

func (m *Memory) LiveState(ctx context.Context, code string) (*SessionState, error) {
	session, err := m.GetSessionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	participants, _ := m.ListParticipants(ctx, session.ID)
	return &SessionState{Session: *session, Participants: participants}, nil
}

func (m *Memory) SubscribeSession(sessionID uint) (<-chan models.QuizSession, func()) {
	return m.notifier.subscribeSession(sessionID)
}

func (m *Memory) SubscribeParticipants(sessionID uint) (<-chan []models.Participant, func()) {
	return m.notifier.subscribeParticipants(sessionID)
}

func (m *Memory) SubscribeResponses(sessionID uint, questionID uint) (<-chan []models.QuestionResponse, func()) {
	return m.notifier.subscribeResponses(sessionID, questionID)
}
