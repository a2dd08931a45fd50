package handlers

import (
	"context"
	"errors"
	"net/http"

	"quizdeck/middleware"
	"quizdeck/models"
	"quizdeck/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type SessionHandler struct {
	engine *services.SessionService
	hub    *services.Hub
	log    *zap.Logger
}

func NewSessionHandler(engine *services.SessionService, hub *services.Hub, log *zap.Logger) *SessionHandler {
	return &SessionHandler{engine: engine, hub: hub, log: log}
}

type createSessionRequest struct {
	QuizID uint `json:"quiz_id" binding:"required"`
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.engine.CreateSession(c.Request.Context(), req.QuizID, middleware.UserID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session})
}

func (h *SessionHandler) GetSessions(c *gin.Context) {
	sessions, err := h.engine.TeacherSessions(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID, err := parseUintParam(c, "id")
	if err != nil {
		return
	}

	session, err := h.engine.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if session.CreatedBy != middleware.UserID(c) {
		abortWithError(c, models.ErrNotSessionOwner)
		return
	}

	participants, err := h.engine.Participants(c.Request.Context(), sessionID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session, "participants": participants})
}

type joinSessionRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required"`
}

func (h *SessionHandler) JoinSession(c *gin.Context) {
	var req joinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participant, session, err := h.engine.JoinSession(c.Request.Context(), req.Code, req.Name, h.hub)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"participant": participant,
		"session": gin.H{
			"id":     session.ID,
			"code":   session.Code,
			"status": session.Status,
		},
	})
}

// GetSessionByCode is the public lookup students hit before joining.
// The payload is trimmed to what the join screen needs.
func (h *SessionHandler) GetSessionByCode(c *gin.Context) {
	session, err := h.engine.GetSessionByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": gin.H{
			"id":                     session.ID,
			"code":                   session.Code,
			"status":                 session.Status,
			"current_question_index": session.CurrentQuestionIndex,
		},
	})
}

// ResolveJoin turns a scanned QR payload (join URL or bare code) into a
// session summary.
func (h *SessionHandler) ResolveJoin(c *gin.Context) {
	code, err := h.engine.ResolveJoinCode(c.Query("payload"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	session, err := h.engine.GetSessionByCode(c.Request.Context(), code)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":   session.Code,
		"status": session.Status,
	})
}

type submitResponseRequest struct {
	ParticipantID string                 `json:"participant_id" binding:"required"`
	QuestionID    uint                   `json:"question_id" binding:"required"`
	Answer        models.SubmittedAnswer `json:"answer"`
	TimeSpent     int                    `json:"time_spent"`
}

func (h *SessionHandler) SubmitResponse(c *gin.Context) {
	sessionID, err := parseUintParam(c, "id")
	if err != nil {
		return
	}

	var req submitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.engine.SubmitResponse(c.Request.Context(), sessionID,
		req.ParticipantID, req.QuestionID, req.Answer, req.TimeSpent, h.hub)
	if errors.Is(err, models.ErrAlreadyAnswered) {
		// First write won; resubmits are a no-op, not a failure.
		c.JSON(http.StatusOK, gin.H{"status": "already_answered"})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"is_correct": response.IsCorrect,
		"points":     response.Points,
	})
}

func (h *SessionHandler) StartSession(c *gin.Context)  { h.control(c, h.engine.StartSession) }
func (h *SessionHandler) PauseSession(c *gin.Context)  { h.control(c, h.engine.PauseSession) }
func (h *SessionHandler) ResumeSession(c *gin.Context) { h.control(c, h.engine.ResumeSession) }
func (h *SessionHandler) NextQuestion(c *gin.Context)  { h.control(c, h.engine.AdvanceQuestion) }
func (h *SessionHandler) PrevQuestion(c *gin.Context)  { h.control(c, h.engine.RetreatQuestion) }
func (h *SessionHandler) EndSession(c *gin.Context)    { h.control(c, h.engine.EndSession) }

type controlFunc func(ctx context.Context, sessionID, teacherID uint, hub *services.Hub) (*models.QuizSession, error)

func (h *SessionHandler) control(c *gin.Context, action controlFunc) {
	sessionID, err := parseUintParam(c, "id")
	if err != nil {
		return
	}

	session, err := action(c.Request.Context(), sessionID, middleware.UserID(c), h.hub)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *SessionHandler) GetStats(c *gin.Context) {
	sessionID, err := parseUintParam(c, "id")
	if err != nil {
		return
	}

	stats, err := h.engine.SessionStats(c.Request.Context(), sessionID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (h *SessionHandler) GetQuestionResponses(c *gin.Context) {
	sessionID, err := parseUintParam(c, "id")
	if err != nil {
		return
	}
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return
	}

	responses, err := h.engine.Responses(c.Request.Context(), sessionID, questionID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"responses": responses})
}

// HandleWebSocket upgrades the connection and hands it to the hub. The
// participant id must belong to the session, or be the host sentinel.
func (h *SessionHandler) HandleWebSocket(c *gin.Context) {
	code := c.Param("code")
	participantID := c.Param("participantID")

	session, err := h.engine.GetSessionByCode(c.Request.Context(), code)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if participantID != services.HostClientID {
		participants, err := h.engine.Participants(c.Request.Context(), session.ID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		known := false
		for _, p := range participants {
			if p.ID == participantID {
				known = true
				break
			}
		}
		if !known {
			abortWithError(c, models.ErrParticipantNotFound)
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.RegisterClient(conn, session.Code, participantID)
}
