package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"flowsketch-backend/application/engine"
	"flowsketch-backend/domain/changes"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Client is one websocket connection. Reads and writes run on their own
// goroutines; the send channel is the only way to write to the socket.
type Client struct {
	hub    *Hub
	engine *engine.Engine
	conn   *websocket.Conn
	send   chan []byte
	userID string

	mu       sync.Mutex
	projects map[string]bool

	log *zap.Logger
}

func newClient(hub *Hub, eng *engine.Engine, conn *websocket.Conn, userID string, log *zap.Logger) *Client {
	return &Client{
		hub:      hub,
		engine:   eng,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		userID:   userID,
		projects: make(map[string]bool),
		log:      log.With(zap.String("user_id", userID)),
	}
}

func (c *Client) joined(projectID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projects[projectID]
}

func (c *Client) setJoined(projectID string, joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if joined {
		c.projects[projectID] = true
	} else {
		delete(c.projects, projectID)
	}
}

// enqueue sends a frame to this client only, dropping it if the buffer is full
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.log.Warn("send buffer full, dropping frame")
	}
}

func (c *Client) sendEnvelope(msgType, projectID, requestID string, payload interface{}) {
	data, err := marshalEnvelope(msgType, projectID, requestID, payload)
	if err != nil {
		c.log.Error("marshaling outbound frame", zap.Error(err))
		return
	}
	c.enqueue(data)
}

func (c *Client) sendError(projectID, requestID, message string) {
	c.sendEnvelope(MessageError, projectID, requestID, map[string]string{"message": message})
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		c.handleMessage(ctx, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.sendError("", "", "malformed message")
		return
	}

	switch env.Type {
	case MessagePing:
		c.sendEnvelope(MessagePong, "", env.RequestID, nil)

	case MessageJoinProject:
		if env.ProjectID == "" {
			c.sendError("", env.RequestID, "projectId is required")
			return
		}
		c.setJoined(env.ProjectID, true)
		c.hub.join <- roomChange{client: c, projectID: env.ProjectID}
		c.sendEnvelope(MessageAck, env.ProjectID, env.RequestID, AckPayload{Status: "joined"})

	case MessageLeaveProject:
		c.setJoined(env.ProjectID, false)
		c.hub.leave <- roomChange{client: c, projectID: env.ProjectID}

	case MessageDiagramEdit:
		c.handleDiagramEdit(ctx, env)

	case MessageSpecEdit:
		c.handleSpecEdit(ctx, env)

	case MessageSyncResolve:
		c.handleResolve(ctx, env)

	case MessageUserCursor, MessageProjectLock:
		// Presence traffic is relayed verbatim, never persisted
		if !c.joined(env.ProjectID) {
			c.sendError(env.ProjectID, env.RequestID, "join the project first")
			return
		}
		c.hub.Relay(env.ProjectID, data, c)

	default:
		c.sendError(env.ProjectID, env.RequestID, "unknown message type "+env.Type)
	}
}

func (c *Client) handleDiagramEdit(ctx context.Context, env Envelope) {
	if !c.joined(env.ProjectID) {
		c.sendError(env.ProjectID, env.RequestID, "join the project first")
		return
	}
	var payload EditPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.sendError(env.ProjectID, env.RequestID, "malformed edit payload")
		return
	}
	ch, err := changes.ParseDiagramChange(payload.Change)
	if err != nil {
		c.sendError(env.ProjectID, env.RequestID, err.Error())
		return
	}
	ch.UserID = c.userID
	if ch.Timestamp.IsZero() {
		ch.Timestamp = time.Now()
	}

	outcome := c.engine.SubmitDiagram(ctx, env.ProjectID, payload.BaseVersion, ch)
	c.ack(env, outcome)
}

func (c *Client) handleSpecEdit(ctx context.Context, env Envelope) {
	if !c.joined(env.ProjectID) {
		c.sendError(env.ProjectID, env.RequestID, "join the project first")
		return
	}
	var payload EditPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.sendError(env.ProjectID, env.RequestID, "malformed edit payload")
		return
	}
	ch, err := changes.ParseSpecChange(payload.Change)
	if err != nil {
		c.sendError(env.ProjectID, env.RequestID, err.Error())
		return
	}
	ch.UserID = c.userID
	if ch.Timestamp.IsZero() {
		ch.Timestamp = time.Now()
	}

	outcome := c.engine.SubmitSpec(ctx, env.ProjectID, payload.BaseVersion, ch)
	c.ack(env, outcome)
}

func (c *Client) handleResolve(ctx context.Context, env Envelope) {
	if !c.joined(env.ProjectID) {
		c.sendError(env.ProjectID, env.RequestID, "join the project first")
		return
	}
	var payload ResolvePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.sendError(env.ProjectID, env.RequestID, "malformed resolve payload")
		return
	}
	outcome := c.engine.ResolveConflict(ctx, env.ProjectID, payload.ConflictID, payload.Accept, c.userID)
	c.ack(env, outcome)
}

// ack returns the engine's synchronous verdict to the submitting client.
// Broadcasts to the room happen separately through the dispatcher.
func (c *Client) ack(env Envelope, outcome engine.Outcome) {
	payload := AckPayload{
		Status:     string(outcome.Status),
		Version:    outcome.Version,
		Delta:      outcome.Delta,
		Conflict:   outcome.Conflict,
		Resolution: outcome.Resolution,
	}
	if outcome.Err != nil {
		payload.Error = outcome.Err.Error()
	}
	c.sendEnvelope(MessageAck, env.ProjectID, env.RequestID, payload)
}
