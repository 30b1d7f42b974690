package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/conn"
	"github.com/dmitrymomot/pulse/pkg/email"
	"github.com/dmitrymomot/pulse/pkg/email/templates"
	"github.com/dmitrymomot/pulse/pkg/events"
	"github.com/dmitrymomot/pulse/pkg/sns"
)

// Rendered is a notification after templating for one channel.
type Rendered struct {
	NotificationID string
	RecipientID    string
	Kind           community.Kind
	Title          string
	Body           string
	Data           map[string]any
	CreatedAt      time.Time
}

// Channel delivers a rendered notification to an address. Transport
// details stay behind this interface.
type Channel interface {
	Name() ChannelName
	Deliver(ctx context.Context, address string, n Rendered) error
}

func channelErr(name ChannelName, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrChannelFailed, name, err)
}

// ConnectionLookup returns the live connections of an identity.
type ConnectionLookup interface {
	ConnectionsFor(userID string) []*conn.Conn
}

// Realtime pushes a notification event to every live connection of the
// recipient. The address is the user id.
type Realtime struct {
	conns ConnectionLookup
}

func NewRealtime(conns ConnectionLookup) *Realtime {
	return &Realtime{conns: conns}
}

func (r *Realtime) Name() ChannelName { return ChannelRealtime }

func (r *Realtime) Deliver(_ context.Context, userID string, n Rendered) error {
	env := events.New(events.NotificationCreated, events.NotificationPayload{
		ID:        n.NotificationID,
		Title:     n.Title,
		Message:   n.Body,
		Type:      string(n.Kind),
		Data:      n.Data,
		Timestamp: n.CreatedAt,
	})

	accepted := 0
	for _, c := range r.conns.ConnectionsFor(userID) {
		if c.Send(env) == nil {
			accepted++
		}
	}
	if accepted == 0 {
		return channelErr(ChannelRealtime, ErrRecipientOffline)
	}
	return nil
}

// PushSender sends a mobile push notification to a device endpoint.
type PushSender interface {
	SendPush(ctx context.Context, endpoint string, p sns.Push) error
}

// Push delivers through a PushSender. The address is the push token.
type Push struct {
	sender PushSender
}

func NewPush(sender PushSender) *Push { return &Push{sender: sender} }

func (p *Push) Name() ChannelName { return ChannelPush }

func (p *Push) Deliver(ctx context.Context, token string, n Rendered) error {
	data := make(map[string]any, len(n.Data)+2)
	for k, v := range n.Data {
		data[k] = v
	}
	data["notificationId"] = n.NotificationID
	data["type"] = string(n.Kind)

	if err := p.sender.SendPush(ctx, token, sns.Push{Title: n.Title, Body: n.Body, Data: data}); err != nil {
		return channelErr(ChannelPush, err)
	}
	return nil
}

// SMSSender sends a text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, body string) error
}

// SMS delivers through an SMSSender. The address is the phone number.
type SMS struct {
	sender SMSSender
}

func NewSMS(sender SMSSender) *SMS { return &SMS{sender: sender} }

func (s *SMS) Name() ChannelName { return ChannelSMS }

func (s *SMS) Deliver(ctx context.Context, phone string, n Rendered) error {
	if err := s.sender.SendSMS(ctx, phone, n.Body); err != nil {
		return channelErr(ChannelSMS, err)
	}
	return nil
}

// Email renders the notification layout and sends it. The address is the
// recipient's email.
type Email struct {
	sender email.Sender
	footer string
}

// NewEmail creates the email channel. footer is appended to every body.
func NewEmail(sender email.Sender, footer string) *Email {
	return &Email{sender: sender, footer: footer}
}

func (e *Email) Name() ChannelName { return ChannelEmail }

func (e *Email) Deliver(ctx context.Context, to string, n Rendered) error {
	data := templates.NotificationData{
		Title:   n.Title,
		Message: n.Body,
		Footer:  e.footer,
	}
	if url, ok := n.Data["url"].(string); ok {
		data.ActionURL = url
		data.Action, _ = n.Data["action"].(string)
	}

	html, err := templates.Render(ctx, templates.Notification(data))
	if err != nil {
		return channelErr(ChannelEmail, err)
	}

	err = e.sender.SendEmail(ctx, email.Message{
		To:      to,
		Subject: n.Title,
		HTML:    html,
		Text:    n.Body,
		Tag:     string(n.Kind),
	})
	if err != nil {
		return channelErr(ChannelEmail, err)
	}
	return nil
}
