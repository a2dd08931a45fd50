package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"quizdeck/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HostClientID marks the teacher dashboard connection on the websocket
// path; everything else is a participant id.
const HostClientID = "host"

// Hub fans session events out to every websocket client connected to a
// session code. One hub serves all sessions; clients are matched by
// code, case-insensitively.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex

	engine *SessionService
	log    *zap.Logger
}

type Client struct {
	hub           *Hub
	id            string
	socket        *websocket.Conn
	send          chan []byte
	sessionCode   string
	participantID string // HostClientID for the teacher dashboard
}

// Message is the envelope every broadcast uses.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func NewHub(engine *SessionService, log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		engine:     engine,
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Info("client registered",
				zap.String("client_id", client.id),
				zap.String("code", client.sessionCode),
				zap.String("participant_id", client.participantID),
				zap.Int("total_clients", total))
			h.markConnectivity(client, models.ParticipantConnected)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Info("client unregistered",
				zap.String("client_id", client.id),
				zap.String("code", client.sessionCode),
				zap.Int("total_clients", total))
			h.markConnectivity(client, models.ParticipantDisconnected)
		}
	}
}

// markConnectivity mirrors the socket lifecycle into the participant's
// stored status. The hub itself is not session-aware beyond this.
func (h *Hub) markConnectivity(client *Client, status string) {
	if client.participantID == HostClientID {
		return
	}
	if err := h.engine.SetParticipantStatus(context.Background(), client.participantID, status, h); err != nil {
		h.log.Warn("failed to update participant connectivity",
			zap.String("participant_id", client.participantID),
			zap.String("status", status),
			zap.Error(err))
	}
}

// BroadcastToSession sends an enveloped message to every client
// connected under the given session code.
func (h *Hub) BroadcastToSession(sessionCode, messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		h.log.Error("failed to marshal broadcast message", zap.Error(err))
		return
	}

	h.mutex.Lock()
	sent := 0
	for client := range h.clients {
		if !strings.EqualFold(client.sessionCode, sessionCode) {
			continue
		}
		select {
		case client.send <- data:
			sent++
		default:
			// Send buffer full; drop the client rather than block the broadcast.
			close(client.send)
			delete(h.clients, client)
		}
	}
	h.mutex.Unlock()

	h.log.Debug("broadcast sent",
		zap.String("type", messageType),
		zap.String("code", sessionCode),
		zap.Int("clients", sent))
}

// ConnectedParticipants returns the participant ids currently connected
// under a session code, excluding the host.
func (h *Hub) ConnectedParticipants(sessionCode string) []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var ids []string
	for client := range h.clients {
		if strings.EqualFold(client.sessionCode, sessionCode) && client.participantID != HostClientID {
			ids = append(ids, client.participantID)
		}
	}
	return ids
}

// IsHostConnected reports whether the teacher dashboard is connected
// for a session code.
func (h *Hub) IsHostConnected(sessionCode string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		if strings.EqualFold(client.sessionCode, sessionCode) && client.participantID == HostClientID {
			return true
		}
	}
	return false
}

// RegisterClient attaches an upgraded websocket connection to the hub
// and starts its pumps.
func (h *Hub) RegisterClient(conn *websocket.Conn, sessionCode, participantID string) *Client {
	client := &Client{
		hub:           h,
		id:            uuid.NewString(),
		socket:        conn,
		send:          make(chan []byte, 256),
		sessionCode:   strings.ToUpper(sessionCode),
		participantID: participantID,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

// sendStateSync pushes the current session snapshot to one client, used
// on join and on explicit request so reconnecting clients catch up.
func (h *Hub) sendStateSync(client *Client) {
	ctx := context.Background()
	state, err := h.engine.LiveState(ctx, client.sessionCode)
	if err != nil {
		h.log.Warn("state sync failed",
			zap.String("code", client.sessionCode), zap.Error(err))
		return
	}

	payload := map[string]interface{}{
		"session":      state.Session,
		"participants": state.Participants,
	}
	if state.Session.Status == models.SessionActive || state.Session.Status == models.SessionPaused {
		if question, err := h.engine.CurrentQuestion(ctx, &state.Session); err == nil {
			payload["current_question"] = question
		}
	}

	data, err := json.Marshal(Message{Type: "state_sync", Payload: payload})
	if err != nil {
		h.log.Error("failed to marshal state sync", zap.Error(err))
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	select {
	case client.send <- data:
	default:
		close(client.send)
		delete(h.clients, client)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.socket.Close()
	}()

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.Warn("dropping malformed client message", zap.String("client_id", c.id), zap.Error(err))
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer c.socket.Close()

	for message := range c.send {
		w, err := c.socket.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		data, _ := json.Marshal(Message{Type: "pong", Payload: "pong"})
		c.hub.mutex.RLock()
		if _, ok := c.hub.clients[c]; ok {
			select {
			case c.send <- data:
			default:
			}
		}
		c.hub.mutex.RUnlock()

	case "join_session", "request_state":
		// Both a fresh join and an explicit resync get the full snapshot.
		c.hub.sendStateSync(c)

	default:
		c.hub.log.Debug("unknown message type",
			zap.String("type", msg.Type),
			zap.String("client_id", c.id),
			zap.String("code", c.sessionCode))
	}
}
