package notifications

import (
	"time"

	"github.com/dmitrymomot/pulse/pkg/community"
)

// ChannelName identifies a delivery channel.
type ChannelName string

const (
	ChannelRealtime ChannelName = "realtime"
	ChannelPush     ChannelName = "push"
	ChannelEmail    ChannelName = "email"
	ChannelSMS      ChannelName = "sms"
)

// CascadeOrder is the fixed cascade priority.
var CascadeOrder = []ChannelName{ChannelRealtime, ChannelPush, ChannelEmail, ChannelSMS}

// Mode selects how channels are attempted.
type Mode string

const (
	// ModeCascade stops at the first successful channel.
	ModeCascade Mode = "cascade"
	// ModeAll attempts every requested channel independently.
	ModeAll Mode = "all"
)

// ChannelResult is the outcome of one channel attempt.
type ChannelResult struct {
	Channel ChannelName `json:"channel"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	At      time.Time   `json:"at"`

	Err error `json:"-"`
}

// State is a notification's lifecycle position.
type State string

const (
	StateCreated   State = "created"
	StateDelivered State = "delivered"
	StateRead      State = "read"
)

// Notification is a stored notification with its delivery history.
type Notification struct {
	ID          string          `json:"id"`
	RecipientID string          `json:"userId"`
	Kind        community.Kind  `json:"type"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Payload     map[string]any  `json:"data,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	Read        bool            `json:"read"`
	ReadAt      *time.Time      `json:"readAt,omitempty"`
	Suppressed  bool            `json:"suppressed,omitempty"`
	Deliveries  []ChannelResult `json:"deliveries"`
}

// State derives the lifecycle state.
func (n Notification) State() State {
	switch {
	case n.Read:
		return StateRead
	case n.Delivered():
		return StateDelivered
	default:
		return StateCreated
	}
}

// Delivered reports whether at least one channel succeeded.
func (n Notification) Delivered() bool {
	for _, r := range n.Deliveries {
		if r.Success {
			return true
		}
	}
	return false
}

// markRead is idempotent: the first read time is kept.
func (n *Notification) markRead(at time.Time) bool {
	if n.Read {
		return false
	}
	n.Read = true
	n.ReadAt = &at
	return true
}

// Request asks the dispatcher to notify one recipient.
type Request struct {
	UserID   string         `json:"userId"`
	Kind     community.Kind `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Payload  map[string]any `json:"data,omitempty"`
	Channels []ChannelName  `json:"channels,omitempty"`
	Mode     Mode           `json:"mode,omitempty"`
}
