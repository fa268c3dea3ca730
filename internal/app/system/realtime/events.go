package realtime

import (
	"encoding/json"
	"strings"
	"time"
)

// Inbound events (client to server).
const (
	EventJoinUser    = "joinUser"
	EventJoinGroup   = "joinGroup"
	EventLeaveGroup  = "leaveGroup"
	EventSendMessage = "sendMessage"
	EventTyping      = "typing"
	EventStopTyping  = "stopTyping"
)

// Outbound events (server to client).
const (
	EventNewMessage     = "newMessage"
	EventUserTyping     = "userTyping"
	EventUserStopTyping = "userStopTyping"
	EventMemberJoined   = "memberJoined"
	EventMessageError   = "messageError"
	EventJoinError      = "joinError"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatMessage is the payload of sendMessage and newMessage.
type ChatMessage struct {
	ID        string    `json:"id,omitempty"`
	GroupID   string    `json:"groupId" validate:"required"`
	UserID    string    `json:"userId" validate:"required"`
	UserName  string    `json:"userName,omitempty"`
	Content   string    `json:"content" validate:"required"`
	Timestamp time.Time `json:"timestamp"`
}

// TypingEvent is the payload of typing/stopTyping and userTyping/userStopTyping.
type TypingEvent struct {
	GroupID   string     `json:"groupId" validate:"required"`
	UserID    string     `json:"userId" validate:"required"`
	UserName  string     `json:"userName,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// MemberJoinedEvent announces a durable group join to the room.
type MemberJoinedEvent struct {
	GroupID   string    `json:"groupId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent is the payload of messageError and joinError.
type ErrorEvent struct {
	Message string `json:"message"`
	GroupID string `json:"groupId,omitempty"`
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// decodeID reads an id argument sent either as a bare JSON string or as an
// object carrying it under key (joinGroup "g1" or joinGroup {"groupId":"g1"}).
func decodeID(raw json.RawMessage, key string) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if v, ok := obj[key].(string); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
