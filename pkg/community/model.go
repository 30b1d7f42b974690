package community

import (
	"slices"
	"time"
)

// Kind classifies notifications. Identities toggle delivery per kind.
type Kind string

const (
	KindMessage       Kind = "message"
	KindFriendRequest Kind = "friend_request"
	KindEvent         Kind = "event"
	KindAlert         Kind = "alert"
	KindSystem        Kind = "system"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindMessage, KindFriendRequest, KindEvent, KindAlert, KindSystem:
		return true
	}
	return false
}

// Addresses are the out-of-band delivery endpoints of an identity.
type Addresses struct {
	PushToken string `json:"pushToken,omitempty" bson:"push_token,omitempty"`
	Email     string `json:"email,omitempty" bson:"email,omitempty"`
	Phone     string `json:"phone,omitempty" bson:"phone,omitempty"`
}

// Identity is a read-only view of a platform user.
type Identity struct {
	UserID      string        `json:"id"`
	DisplayName string        `json:"name"`
	Avatar      string        `json:"avatar,omitempty"`
	Toggles     map[Kind]bool `json:"toggles,omitempty"`
	Addresses   Addresses     `json:"addresses"`
}

// Allows reports whether the identity accepts notifications of kind k.
// Kinds without an explicit toggle are allowed.
func (i Identity) Allows(k Kind) bool {
	on, ok := i.Toggles[k]
	return !ok || on
}

// Role is a participant's role inside a conversation.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

type Participant struct {
	UserID     string    `json:"userId" bson:"user_id"`
	Role       Role      `json:"role" bson:"role"`
	JoinedAt   time.Time `json:"joinedAt" bson:"joined_at"`
	LastSeenAt time.Time `json:"lastSeenAt,omitzero" bson:"last_seen_at,omitempty"`
	Unread     int       `json:"unread" bson:"unread"`
}

// MessageSummary is the denormalized last message of a conversation.
type MessageSummary struct {
	MessageID string    `json:"messageId" bson:"message_id"`
	SenderID  string    `json:"senderId" bson:"sender_id"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

type Conversation struct {
	ID           string          `json:"id" bson:"_id"`
	Participants []Participant   `json:"participants" bson:"participants"`
	LastMessage  *MessageSummary `json:"lastMessage,omitempty" bson:"last_message,omitempty"`
}

// ParticipantIDs returns the user ids of every participant.
func (c Conversation) ParticipantIDs() []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		out = append(out, p.UserID)
	}
	return out
}

// HasParticipant reports whether userID takes part in the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	return slices.ContainsFunc(c.Participants, func(p Participant) bool { return p.UserID == userID })
}

type Attachment struct {
	URL      string `json:"url" bson:"url"`
	MimeType string `json:"mimeType,omitempty" bson:"mime_type,omitempty"`
	Name     string `json:"name,omitempty" bson:"name,omitempty"`
}

// Message is a persisted chat message. ReadBy has set semantics.
type Message struct {
	ID             string       `json:"id" bson:"_id"`
	ConversationID string       `json:"conversationId" bson:"conversation_id"`
	SenderID       string       `json:"senderId" bson:"sender_id"`
	Content        string       `json:"content" bson:"content"`
	Attachments    []Attachment `json:"attachments,omitempty" bson:"attachments,omitempty"`
	CreatedAt      time.Time    `json:"createdAt" bson:"created_at"`
	ReadBy         []string     `json:"readBy,omitempty" bson:"read_by,omitempty"`
}

// ReadByUser reports whether userID is in the read set.
func (m Message) ReadByUser(userID string) bool {
	return slices.Contains(m.ReadBy, userID)
}
