package events

import (
	"encoding/json"
	"errors"
	"time"
)

// Client to server event names.
const (
	JoinConversation  = "join_conversation"
	LeaveConversation = "leave_conversation"
	TypingStart       = "typing"
	TypingStop        = "stop_typing"
	MarkRead          = "mark_read"
	Ping              = "ping"
)

// Server to client event names.
const (
	NewMessage          = "new_message"
	MessageReadBy       = "message_read_by"
	UserStatusChanged   = "user_status_changed"
	NotificationCreated = "notification"
	ConnectionStats     = "connection_stats"
	ConversationJoined  = "conversation_joined"
	ConversationLeft    = "conversation_left"
	Pong                = "pong"
	Error               = "error"
)

// Envelope is an outbound frame.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// New builds an outbound envelope.
func New(event string, data any) Envelope {
	return Envelope{Event: event, Data: data}
}

// Inbound is a frame received from a client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Bind decodes the inbound payload into v.
func (in Inbound) Bind(v any) error {
	if len(in.Data) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(in.Data, v); err != nil {
		return errors.Join(ErrInvalidPayload, err)
	}
	return nil
}

// ConversationRef is the payload of join, leave and typing requests.
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// MarkReadRequest asks to mark a message as read by the connection's owner.
// With only ConversationID set every unread message of the conversation is
// marked.
type MarkReadRequest struct {
	MessageID      string `json:"messageId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Sender is the public profile attached to a new message.
type Sender struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Attachment mirrors a stored message attachment.
type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	Name     string `json:"name,omitempty"`
}

// NewMessagePayload is pushed to every live connection of a conversation.
type NewMessagePayload struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Content        string       `json:"content"`
	Sender         Sender       `json:"sender"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// Reader identifies who read a message.
type Reader struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MessageReadByPayload is sent to the original sender only.
type MessageReadByPayload struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	ReadBy         Reader    `json:"readBy"`
	ReadAt         time.Time `json:"readAt"`
}

// Status is an identity's presence state.
type Status string

const (
	Online  Status = "online"
	Offline Status = "offline"
)

// StatusPayload announces a presence transition. Seq increases per identity.
type StatusPayload struct {
	UserID    string    `json:"userId"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
}

// NotificationPayload is the realtime rendition of a stored notification.
type NotificationPayload struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// StatsPayload is sent once to a freshly connected client.
type StatsPayload struct {
	ConnectedUsers      int `json:"connectedUsers"`
	ActiveConversations int `json:"activeConversations"`
}

// TypingPayload is relayed to conversation peers.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// ErrorPayload reports a rejected request without closing the connection.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried by ErrorPayload.
const (
	CodeBadRequest   = "bad_request"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeUnknownEvent = "unknown_event"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal_error"
)

// Fail builds an error envelope.
func Fail(code, message string) Envelope {
	return New(Error, ErrorPayload{Code: code, Message: message})
}
