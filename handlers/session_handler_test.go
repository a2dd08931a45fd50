package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"quizdeck/handlers"
	"quizdeck/models"
	"quizdeck/routes"
	"quizdeck/services"
	"quizdeck/store"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T) (*gin.Engine, *services.SessionService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemory()
	mem.AddQuiz(models.Quiz{
		ID:        1,
		Title:     "Science",
		CreatedBy: 1,
		Questions: []models.Question{
			{
				ID:            10,
				QuizID:        1,
				Type:          models.QuestionTrueFalse,
				Prompt:        "Water boils at 100C at sea level",
				CorrectAnswer: "true",
				Points:        5,
				TimeLimit:     30,
				Order:         1,
			},
		},
	})

	log := zap.NewNop()
	engine := services.NewSessionService(mem, log)
	auth := services.NewAuthService(nil, testSecret, time.Hour)
	hub := services.NewHub(engine, log)
	go hub.Run()

	router := gin.New()
	routes.Setup(router,
		auth,
		handlers.NewAuthHandler(auth),
		handlers.NewQuizHandler(services.NewQuizService(nil)),
		handlers.NewSessionHandler(engine, hub, log),
		"*",
	)
	return router, engine
}

func teacherToken(t *testing.T, userID uint) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var out map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func createSession(t *testing.T, router *gin.Engine, token string) models.QuizSession {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/sessions", token, gin.H{"quiz_id": 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", w.Code, w.Body.String())
	}
	var session models.QuizSession
	if err := json.Unmarshal(decodeBody(t, w)["session"], &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session
}

func joinSession(t *testing.T, router *gin.Engine, code, name string) models.Participant {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/sessions/join", "", gin.H{"code": code, "name": name})
	if w.Code != http.StatusOK {
		t.Fatalf("join: %d %s", w.Code, w.Body.String())
	}
	var participant models.Participant
	if err := json.Unmarshal(decodeBody(t, w)["participant"], &participant); err != nil {
		t.Fatalf("decode participant: %v", err)
	}
	return participant
}

func TestCreateSessionRequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/api/sessions", "", gin.H{"quiz_id": 1})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)
	token := teacherToken(t, 1)

	session := createSession(t, router, token)
	if session.Status != models.SessionWaiting {
		t.Errorf("expected waiting, got %q", session.Status)
	}

	participant := joinSession(t, router, session.Code, "Ana")

	idPath := "/api/sessions/" + itoa(session.ID)
	if w := doJSON(t, router, http.MethodPost, idPath+"/start", token, nil); w.Code != http.StatusOK {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}

	w := doJSON(t, router, http.MethodPost, idPath+"/responses", "", gin.H{
		"participant_id": participant.ID,
		"question_id":    10,
		"answer":         gin.H{"choice": "true"},
		"time_spent":     4,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	var correct bool
	json.Unmarshal(body["is_correct"], &correct)
	if !correct {
		t.Errorf("expected correct submission, got %s", w.Body.String())
	}

	// A resubmission is a 200 no-op, not an error.
	w = doJSON(t, router, http.MethodPost, idPath+"/responses", "", gin.H{
		"participant_id": participant.ID,
		"question_id":    10,
		"answer":         gin.H{"choice": "false"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("duplicate submit: %d %s", w.Code, w.Body.String())
	}
	var status string
	json.Unmarshal(decodeBody(t, w)["status"], &status)
	if status != "already_answered" {
		t.Errorf("expected already_answered, got %s", w.Body.String())
	}

	if w := doJSON(t, router, http.MethodPost, idPath+"/end", token, nil); w.Code != http.StatusOK {
		t.Fatalf("end: %d %s", w.Code, w.Body.String())
	}

	// Joining after completion reports the session as gone.
	w = doJSON(t, router, http.MethodPost, "/api/sessions/join", "", gin.H{"code": session.Code, "name": "Late"})
	if w.Code != http.StatusGone {
		t.Errorf("expected 410 for completed session, got %d", w.Code)
	}
}

func TestPauseFromWaitingConflicts(t *testing.T) {
	router, _ := newTestRouter(t)
	token := teacherToken(t, 1)
	session := createSession(t, router, token)

	w := doJSON(t, router, http.MethodPost, "/api/sessions/"+itoa(session.ID)+"/pause", token, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d %s", w.Code, w.Body.String())
	}
}

func TestControlByNonOwnerForbidden(t *testing.T) {
	router, _ := newTestRouter(t)
	session := createSession(t, router, teacherToken(t, 1))

	w := doJSON(t, router, http.MethodPost, "/api/sessions/"+itoa(session.ID)+"/start", teacherToken(t, 2), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d %s", w.Code, w.Body.String())
	}
}

func TestGetSessionByCodePublic(t *testing.T) {
	router, _ := newTestRouter(t)
	session := createSession(t, router, teacherToken(t, 1))

	w := doJSON(t, router, http.MethodGet, "/api/sessions/code/"+session.Code, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get by code: %d %s", w.Code, w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("correct_answer")) {
		t.Errorf("public session payload leaks answers: %s", w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/sessions/code/NOPE99", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown code, got %d", w.Code)
	}
}

func TestResolveJoinEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	session := createSession(t, router, teacherToken(t, 1))

	w := doJSON(t, router, http.MethodGet,
		"/join?payload=https%3A%2F%2Fquiz.example.com%2Fstudent%3Fcode%3D"+session.Code, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve join: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/join?payload=nonsense", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad payload, got %d", w.Code)
	}
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
