package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/studyhub/internal/app/system/limits"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Ping period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Deadline for a room gate lookup.
	gateTimeout = 5 * time.Second
)

var validate = validator.New()

// Conn pumps frames between one websocket and the router. Inbound events
// for a connection are handled in order on its read goroutine.
type Conn struct {
	router  *Router
	session *Session
	ws      *websocket.Conn

	// authUserID is the identity established at upgrade, if any. When set,
	// joinUser may only announce this id.
	authUserID string

	log *zap.Logger
}

// Serve attaches ws to the router and starts its read and write
// goroutines. authUserID, when non-empty, is announced immediately.
func (r *Router) Serve(ws *websocket.Conn, authUserID string, logger *zap.Logger) (*Conn, error) {
	s, err := r.Connect()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = r.log
	}
	c := &Conn{
		router:     r,
		session:    s,
		ws:         ws,
		authUserID: authUserID,
		log:        logger.With(zap.String("conn_id", s.ID)),
	}
	if authUserID != "" {
		if err := r.Announce(s, authUserID); err != nil {
			return nil, err
		}
	}
	c.log.Info("socket connected", zap.String("user_id", authUserID))

	go c.writePump()
	go c.readPump()
	return c, nil
}

// SessionID returns the router session id of this connection.
func (c *Conn) SessionID() string { return c.session.ID }

func (c *Conn) readPump() {
	defer func() {
		_ = c.router.Disconnect(c.session)
		c.ws.Close()
		c.log.Info("socket disconnected")
	}()

	c.ws.SetReadLimit(limits.MaxSocketFrame)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("socket read error", zap.Error(err))
			}
			return
		}
		c.handle(frame)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	out := c.session.Outbound()
	for {
		select {
		case frame, ok := <-out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The router closed the session.
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle dispatches one inbound frame. Payload problems are reported to
// this connection only with messageError.
func (c *Conn) handle(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		c.fail("malformed", "Malformed event")
		return
	}

	switch env.Event {
	case EventJoinUser:
		c.onJoinUser(env.Data)
	case EventJoinGroup:
		c.onJoinGroup(env.Data)
	case EventLeaveGroup:
		if groupID := decodeID(env.Data, "groupId"); groupID == "" {
			c.fail("invalid", "groupId is required")
		} else {
			_ = c.router.LeaveRoom(c.session, groupID)
		}
	case EventSendMessage:
		c.onSendMessage(env.Data)
	case EventTyping, EventStopTyping:
		c.onTyping(env.Event, env.Data)
	default:
		c.fail("unknown_event", "Unknown event: "+env.Event)
	}
}

func (c *Conn) onJoinUser(data json.RawMessage) {
	userID := decodeID(data, "userId")
	if userID == "" {
		c.fail("invalid", "userId is required")
		return
	}
	if c.authUserID != "" && userID != c.authUserID {
		c.fail("invalid", "userId does not match the signed-in user")
		return
	}
	_ = c.router.Announce(c.session, userID)
	c.log.Debug("user announced", zap.String("user_id", userID))
}

func (c *Conn) onJoinGroup(data json.RawMessage) {
	groupID := decodeID(data, "groupId")
	if groupID == "" {
		c.fail("invalid", "groupId is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), gateTimeout)
	defer cancel()

	err := c.router.JoinRoom(ctx, c.session, groupID)
	switch {
	case err == nil:
		c.log.Debug("joined room", zap.String("group_id", groupID))
	case errors.Is(err, ErrJoinDenied):
		c.log.Info("room join denied", zap.String("group_id", groupID), zap.Error(err))
		_ = c.router.SendTo(c.session, EventJoinError, ErrorEvent{Message: "Not allowed to join this group", GroupID: groupID})
	default:
		c.log.Warn("room join failed", zap.String("group_id", groupID), zap.Error(err))
	}
}

func (c *Conn) onSendMessage(data json.RawMessage) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.fail("malformed", "Malformed message payload")
		return
	}
	msg.GroupID = strings.TrimSpace(msg.GroupID)
	msg.UserID = strings.TrimSpace(msg.UserID)
	msg.Content = strings.TrimSpace(msg.Content)
	if err := validate.Struct(msg); err != nil {
		c.fail("invalid", "Missing required fields")
		return
	}
	if !c.speaksFor(msg.UserID) {
		c.fail("invalid", "userId does not match the signed-in user")
		return
	}
	// Server time, not the client's.
	msg.Timestamp = time.Time{}

	if _, err := c.router.BroadcastMessage(msg.GroupID, msg); err != nil {
		c.log.Warn("broadcast failed", zap.String("group_id", msg.GroupID), zap.Error(err))
		c.fail("broadcast", "Failed to send message")
	}
}

func (c *Conn) onTyping(event string, data json.RawMessage) {
	var ev TypingEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.fail("malformed", "Malformed typing payload")
		return
	}
	if err := validate.Struct(ev); err != nil {
		c.fail("invalid", "Missing required fields")
		return
	}
	if !c.speaksFor(ev.UserID) {
		c.fail("invalid", "userId does not match the signed-in user")
		return
	}
	if event == EventTyping {
		_, _ = c.router.BroadcastTyping(c.session, ev.GroupID, ev.UserID, ev.UserName)
	} else {
		_, _ = c.router.BroadcastStopTyping(c.session, ev.GroupID, ev.UserID)
	}
}

// speaksFor reports whether a payload's userId is acceptable: anything on an
// anonymous connection, only the signed-in user otherwise.
func (c *Conn) speaksFor(userID string) bool {
	return c.authUserID == "" || userID == c.authUserID
}

func (c *Conn) fail(reason, message string) {
	inboundErrors.WithLabelValues(reason).Inc()
	_ = c.router.SendTo(c.session, EventMessageError, ErrorEvent{Message: message})
}
