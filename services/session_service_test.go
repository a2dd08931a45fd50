package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"quizdeck/models"
	"quizdeck/store"

	"go.uber.org/zap"
)

const teacherID = uint(1)

func newTestEngine(t *testing.T) (*SessionService, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.AddQuiz(models.Quiz{
		ID:        1,
		Title:     "Geography",
		CreatedBy: teacherID,
		Questions: []models.Question{
			{
				ID:            10,
				QuizID:        1,
				Type:          models.QuestionMultipleChoice,
				Prompt:        "Capital of France?",
				Options:       []string{"Paris", "Lyon"},
				CorrectAnswer: "Paris",
				Points:        10,
				TimeLimit:     30,
				Order:         1,
			},
			{
				ID:            11,
				QuizID:        1,
				Type:          models.QuestionTrueFalse,
				Prompt:        "The Nile is in Europe",
				CorrectAnswer: "false",
				Points:        5,
				TimeLimit:     20,
				Order:         2,
			},
		},
	})
	return NewSessionService(mem, zap.NewNop()), mem
}

func mustCreate(t *testing.T, engine *SessionService) *models.QuizSession {
	t.Helper()
	session, err := engine.CreateSession(context.Background(), 1, teacherID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func mustJoin(t *testing.T, engine *SessionService, code, name string) *models.Participant {
	t.Helper()
	participant, _, err := engine.JoinSession(context.Background(), code, name, nil)
	if err != nil {
		t.Fatalf("join session: %v", err)
	}
	return participant
}

func TestCreateSessionStartsWaiting(t *testing.T) {
	engine, _ := newTestEngine(t)
	session := mustCreate(t, engine)

	if session.Status != models.SessionWaiting {
		t.Errorf("expected waiting, got %q", session.Status)
	}
	if session.CurrentQuestionIndex != 0 {
		t.Errorf("expected question index 0, got %d", session.CurrentQuestionIndex)
	}
	if len(session.Code) != models.CodeLength {
		t.Errorf("unexpected code %q", session.Code)
	}
}

func TestCreateSessionChecksOwnership(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.CreateSession(context.Background(), 1, 99)
	if !errors.Is(err, models.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound for foreign quiz, got %v", err)
	}
}

func TestJoinSessionCaseInsensitive(t *testing.T) {
	engine, _ := newTestEngine(t)
	session := mustCreate(t, engine)

	participant, joined, err := engine.JoinSession(context.Background(),
		"  "+strings.ToLower(session.Code)+"  ", "Ana", nil)
	if err != nil {
		t.Fatalf("join with lowercase padded code: %v", err)
	}
	if joined.ID != session.ID {
		t.Errorf("joined wrong session: %d", joined.ID)
	}
	if participant.Status != models.ParticipantConnected {
		t.Errorf("expected connected, got %q", participant.Status)
	}
	if participant.Score != 0 {
		t.Errorf("expected score 0, got %d", participant.Score)
	}
}

func TestJoinCompletedSessionRejected(t *testing.T) {
	engine, _ := newTestEngine(t)
	session := mustCreate(t, engine)

	if _, err := engine.EndSession(context.Background(), session.ID, teacherID, nil); err != nil {
		t.Fatalf("end session: %v", err)
	}
	_, _, err := engine.JoinSession(context.Background(), session.Code, "Late", nil)
	if !errors.Is(err, models.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestDuplicateNamesAllowed(t *testing.T) {
	engine, _ := newTestEngine(t)
	session := mustCreate(t, engine)

	a := mustJoin(t, engine, session.Code, "Sam")
	b := mustJoin(t, engine, session.Code, "Sam")
	if a.ID == b.ID {
		t.Error("two joins produced the same participant id")
	}
}

func TestSubmitCorrectAnswerScores(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	session := mustCreate(t, engine)
	participant := mustJoin(t, engine, session.Code, "Ana")

	if _, err := engine.StartSession(ctx, session.ID, teacherID, nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	response, err := engine.SubmitResponse(ctx, session.ID, participant.ID, 10,
		models.SubmittedAnswer{Choice: "Paris"}, 7, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !response.IsCorrect || response.Points != 10 {
		t.Errorf("unexpected result %+v", response)
	}
	if response.TimeSpent != 7 {
		t.Errorf("expected time spent 7, got %d", response.TimeSpent)
	}

	participants, err := engine.Participants(ctx, session.ID)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if participants[0].Score != 10 {
		t.Errorf("expected score 10, got %d", participants[0].Score)
	}
}

func TestSubmitWrongAnswerKeepsScore(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	session := mustCreate(t, engine)
	participant := mustJoin(t, engine, session.Code, "Ben")

	if _, err := engine.StartSession(ctx, session.ID, teacherID, nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	response, err := engine.SubmitResponse(ctx, session.ID, participant.ID, 10,
		models.SubmittedAnswer{Choice: "Lyon"}, 5, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if response.IsCorrect || response.Points != 0 {
		t.Errorf("unexpected result %+v", response)
	}

	participants, _ := engine.Participants(ctx, session.ID)
	if participants[0].Score != 0 {
		t.Errorf("wrong answer changed score to %d", participants[0].Score)
	}
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	session := mustCreate(t, engine)
	participant := mustJoin(t, engine, session.Code, "Cleo")

	if _, err := engine.StartSession(ctx, session.ID, teacherID, nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := engine.SubmitResponse(ctx, session.ID, participant.ID, 10,
		models.SubmittedAnswer{Choice: "Paris"}, 3, nil)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err = engine.SubmitResponse(ctx, session.ID, participant.ID, 10,
		models.SubmittedAnswer{Choice: "Lyon"}, 4, nil)
	if !errors.Is(err, models.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}

	// First write wins: one record, original answer, score counted once.
	responses, err := engine.Responses(ctx, session.ID, 10)
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if responses[0].ID != first.ID || responses[0].Answer.Choice != "Paris" {
		t.Errorf("surviving response is not the first: %+v", responses[0])
	}
	participants, _ := engine.Participants(ctx, session.ID)
	if participants[0].Score != 10 {
		t.Errorf("expected score 10 after duplicate, got %d", participants[0].Score)
	}
}

func TestSubmitToCompletedSessionRejected(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	session := mustCreate(t, engine)
	participant := mustJoin(t, engine, session.Code, "Dre")

	if _, err := engine.StartSession(ctx, session.ID, teacherID, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.EndSession(ctx, session.ID, teacherID, nil); err != nil {
		t.Fatalf("end: %v", err)
	}

	_, err := engine.SubmitResponse(ctx, session.ID, participant.ID, 10,
		models.SubmittedAnswer{Choice: "Paris"}, 2, nil)
	if !errors.Is(err, models.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestSubmitUnknownQuestion(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	session := mustCreate(t, engine)
	participant := mustJoin(t, engine, session.Code, "Eve")

	if _, err := engine.StartSession(ctx, session.ID, teacherID, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := engine.SubmitResponse(ctx, session.ID, participant.ID, 999,
		models.SubmittedAnswer{Choice: "x"}, 1, nil)
	if !errors.Is(err, models.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestPauseFromWaitingRejected(t *testing.T) {
	engine, _ := newTestEngine(t)
	session := mustCreate(t, engine)

	_, err := engine.PauseSession(context.Background(), session.ID, teacherID, nil)
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	got, _ := engine.GetSession(context.Background(), session.ID)
	if got.Status != models.SessionWaiting {
		t.Errorf("rejected pause changed status to %q", got.Status)
	}
}

func TestControlRequiresOwnership(t *testing.T) {
	engine, _ := newTestEngine(t)
	session := mustCreate(t, engine)

	_, err := engine.StartSession(context.Background(), session.ID, 42, nil)
	if !errors.Is(err, models.ErrNotSessionOwner) {
		t.Fatalf("expected ErrNotSessionOwner, got %v", err)
	}
}

func TestAdvanceAtLastQuestionEndsAndDisconnects(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	session := mustCreate(t, engine)
	mustJoin(t, engine, session.Code, "Fay")
	mustJoin(t, engine, session.Code, "Gil")

	if _, err := engine.StartSession(ctx, session.ID, teacherID, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.AdvanceQuestion(ctx, session.ID, teacherID, nil); err != nil {
		t.Fatalf("advance to last question: %v", err)
	}

	final, err := engine.AdvanceQuestion(ctx, session.ID, teacherID, nil)
	if err != nil {
		t.Fatalf("advance past last question: %v", err)
	}
	if final.Status != models.SessionCompleted {
		t.Errorf("expected completed, got %q", final.Status)
	}
	if final.EndTime == nil {
		t.Error("end time not stamped")
	}

	participants, _ := engine.Participants(ctx, session.ID)
	for _, p := range participants {
		if p.Status != models.ParticipantDisconnected {
			t.Errorf("participant %s still %q after completion", p.Name, p.Status)
		}
	}
}

func TestSessionSubscriptionReceivesTransitions(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	session := mustCreate(t, engine)

	updates, cancel := engine.SubscribeToSession(session.ID)
	defer cancel()

	if _, err := engine.StartSession(ctx, session.ID, teacherID, nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case got := <-updates:
		if got.Status != models.SessionActive {
			t.Errorf("expected active snapshot, got %q", got.Status)
		}
	default:
		t.Fatal("no session snapshot delivered")
	}
}

func TestParticipantSubscriptionReceivesJoins(t *testing.T) {
	engine, _ := newTestEngine(t)
	session := mustCreate(t, engine)

	updates, cancel := engine.SubscribeToParticipants(session.ID)
	defer cancel()

	mustJoin(t, engine, session.Code, "Hana")

	select {
	case got := <-updates:
		if len(got) != 1 || got[0].Name != "Hana" {
			t.Errorf("unexpected participant snapshot: %+v", got)
		}
	default:
		t.Fatal("no participant snapshot delivered")
	}
}

func TestSessionStats(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	session := mustCreate(t, engine)
	a := mustJoin(t, engine, session.Code, "Ida")
	b := mustJoin(t, engine, session.Code, "Jon")

	if _, err := engine.StartSession(ctx, session.ID, teacherID, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.SubmitResponse(ctx, session.ID, a.ID, 10,
		models.SubmittedAnswer{Choice: "Paris"}, 4, nil); err != nil {
		t.Fatalf("submit a: %v", err)
	}
	if _, err := engine.SubmitResponse(ctx, session.ID, b.ID, 10,
		models.SubmittedAnswer{Choice: "Lyon"}, 9, nil); err != nil {
		t.Fatalf("submit b: %v", err)
	}

	stats, err := engine.SessionStats(ctx, session.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalParticipants != 2 || stats.ActiveParticipants != 2 {
		t.Errorf("unexpected participant counts: %+v", stats)
	}
	if stats.TotalResponses != 2 {
		t.Errorf("expected 2 responses, got %d", stats.TotalResponses)
	}
	if stats.AverageResponseTime != 7 { // (4+9)/2 rounded
		t.Errorf("expected average 7, got %d", stats.AverageResponseTime)
	}
}

func TestResolveJoinCode(t *testing.T) {
	engine, _ := newTestEngine(t)

	cases := []struct {
		payload string
		want    string
		wantErr bool
	}{
		{"https://quiz.example.com/student?code=AB12CD", "AB12CD", false},
		{"ab12cd", "AB12CD", false},
		{" AB12CD ", "AB12CD", false},
		{"https://quiz.example.com/student", "", true},
		{"ABC", "", true},
		{"AB12C!", "", true},
	}
	for _, tc := range cases {
		got, err := engine.ResolveJoinCode(tc.payload)
		if tc.wantErr {
			if !errors.Is(err, models.ErrInvalidJoinCode) {
				t.Errorf("%q: expected ErrInvalidJoinCode, got %v", tc.payload, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.payload, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: expected %q, got %q", tc.payload, tc.want, got)
		}
	}
}

func TestLateSubmissionAcceptedWhilePaused(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	session := mustCreate(t, engine)
	participant := mustJoin(t, engine, session.Code, "Kay")

	if _, err := engine.StartSession(ctx, session.ID, teacherID, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.PauseSession(ctx, session.ID, teacherID, nil); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// In-flight answers land even while the host has the session paused.
	if _, err := engine.SubmitResponse(ctx, session.ID, participant.ID, 10,
		models.SubmittedAnswer{Choice: "Paris"}, 0, nil); err != nil {
		t.Fatalf("submit while paused: %v", err)
	}

	responses, _ := engine.Responses(ctx, session.ID, 10)
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	// Zero time spent falls back to the question limit.
	if responses[0].TimeSpent != 30 {
		t.Errorf("expected default time spent 30, got %d", responses[0].TimeSpent)
	}
}
