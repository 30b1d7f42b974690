package fanout

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/dmitrymomot/pulse/pkg/async"
	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/conn"
	"github.com/dmitrymomot/pulse/pkg/events"
	"github.com/dmitrymomot/pulse/pkg/logger"
	"github.com/dmitrymomot/pulse/pkg/notifications"
)

const (
	defaultStripes = 64
	previewRunes   = 140
)

// Rooms yields the connections subscribed to a conversation.
type Rooms interface {
	Snapshot(conversationID string) []*conn.Conn
}

// Presence tells whether an identity holds a live connection.
type Presence interface {
	IsOnline(userID string) bool
}

// Notifier queues a notification in the background.
type Notifier interface {
	Go(ctx context.Context, req notifications.Request) *async.Future[notifications.Notification]
}

// Observer receives fan-out counters.
type Observer interface {
	MessageFanout(delivered, failed, queued int)
}

// Report summarizes one dispatch.
type Report struct {
	MessageID      string   `json:"messageId"`
	ConversationID string   `json:"conversationId"`
	Delivered      int      `json:"delivered"`
	Failed         int      `json:"failed"`
	Queued         []string `json:"queued"`
	Muted          []string `json:"muted,omitempty"`
}

// Engine fans messages out to rooms.
type Engine struct {
	rooms         Rooms
	presence      Presence
	conversations community.ConversationStore
	directory     community.IdentityDirectory
	notifier      Notifier
	observer      Observer
	locks         []sync.Mutex
	log           *slog.Logger
}

type Option func(*Engine)

// WithDirectory resolves sender profiles and recipient toggles.
func WithDirectory(d community.IdentityDirectory) Option {
	return func(e *Engine) { e.directory = d }
}

// WithNotifier enables offline notifications.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithStripes sets how many conversation locks are kept.
func WithStripes(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.locks = make([]sync.Mutex, n)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an engine. conversations supplies participant lists and
// receives the last-message summary and unread counters.
func New(rooms Rooms, presence Presence, conversations community.ConversationStore, opts ...Option) *Engine {
	e := &Engine{
		rooms:         rooms,
		presence:      presence,
		conversations: conversations,
		locks:         make([]sync.Mutex, defaultStripes),
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) lockFor(conversationID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return &e.locks[h.Sum32()%uint32(len(e.locks))]
}

// Authorize runs the checks Dispatch starts with: msg is well formed, its
// conversation exists and the sender participates in it. Callers use it to
// gate side effects such as persisting msg.
func (e *Engine) Authorize(ctx context.Context, msg community.Message) error {
	_, err := e.authorize(ctx, msg)
	return err
}

func (e *Engine) authorize(ctx context.Context, msg community.Message) (community.Conversation, error) {
	if msg.ID == "" || msg.ConversationID == "" || msg.SenderID == "" {
		return community.Conversation{}, ErrInvalidMessage
	}
	conv, err := e.conversations.Conversation(ctx, msg.ConversationID)
	if err != nil {
		return community.Conversation{}, errors.Join(ErrConversationLookup, err)
	}
	if !conv.HasParticipant(msg.SenderID) {
		return community.Conversation{}, ErrSenderNotInRoom
	}
	return conv, nil
}

// Dispatch delivers msg to its conversation. An error is returned only when
// the message is malformed or the conversation cannot be resolved.
func (e *Engine) Dispatch(ctx context.Context, msg community.Message) (Report, error) {
	conv, err := e.authorize(ctx, msg)
	if err != nil {
		return Report{}, err
	}

	sender := e.sender(ctx, msg.SenderID)
	report := Report{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Queued:         []string{},
	}

	env := events.New(events.NewMessage, events.NewMessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		Sender:         sender,
		Attachments: lo.Map(msg.Attachments, func(a community.Attachment, _ int) events.Attachment {
			return events.Attachment{URL: a.URL, MimeType: a.MimeType, Name: a.Name}
		}),
		Timestamp: msg.CreatedAt,
	})

	mu := e.lockFor(msg.ConversationID)
	mu.Lock()
	for _, c := range e.rooms.Snapshot(msg.ConversationID) {
		if c.UserID() == msg.SenderID {
			continue
		}
		if err := c.Send(env); err != nil {
			report.Failed++
			e.log.LogAttrs(ctx, slog.LevelDebug, "message not delivered to connection",
				logger.MessageID(msg.ID),
				logger.ConnectionID(c.ID()),
				logger.Error(err),
			)
			continue
		}
		report.Delivered++
	}
	mu.Unlock()

	offline := lo.Filter(conv.ParticipantIDs(), func(userID string, _ int) bool {
		return userID != msg.SenderID && !e.presence.IsOnline(userID)
	})
	for _, userID := range lo.Uniq(offline) {
		if e.notify(ctx, msg, sender, userID) {
			report.Queued = append(report.Queued, userID)
		} else {
			report.Muted = append(report.Muted, userID)
		}
	}

	e.bookkeeping(ctx, msg, conv)

	if e.observer != nil {
		e.observer.MessageFanout(report.Delivered, report.Failed, len(report.Queued))
	}
	e.log.LogAttrs(ctx, slog.LevelInfo, "message fanned out",
		logger.MessageID(msg.ID),
		logger.ConversationID(msg.ConversationID),
		slog.Int("delivered", report.Delivered),
		slog.Int("failed", report.Failed),
		slog.Int("queued", len(report.Queued)),
	)
	return report, nil
}

func (e *Engine) sender(ctx context.Context, userID string) events.Sender {
	s := events.Sender{ID: userID, Name: userID}
	if e.directory == nil {
		return s
	}
	id, err := e.directory.Identity(ctx, userID)
	if err != nil {
		e.log.LogAttrs(ctx, slog.LevelWarn, "sender profile unavailable",
			logger.UserID(userID),
			logger.Error(err),
		)
		return s
	}
	if id.DisplayName != "" {
		s.Name = id.DisplayName
	}
	s.Avatar = id.Avatar
	return s
}

// notify queues a message notification for an offline participant and
// reports whether it was queued.
func (e *Engine) notify(ctx context.Context, msg community.Message, sender events.Sender, userID string) bool {
	if e.notifier == nil {
		return false
	}
	if e.directory != nil {
		id, err := e.directory.Identity(ctx, userID)
		if err != nil {
			e.log.LogAttrs(ctx, slog.LevelWarn, "offline recipient lookup failed",
				logger.UserID(userID),
				logger.MessageID(msg.ID),
				logger.Error(err),
			)
			return false
		}
		if !id.Allows(community.KindMessage) {
			return false
		}
	}

	e.notifier.Go(ctx, notifications.Request{
		UserID:  userID,
		Kind:    community.KindMessage,
		Title:   sender.Name,
		Message: preview(msg.Content, len(msg.Attachments)),
		Payload: map[string]any{
			"conversationId": msg.ConversationID,
			"messageId":      msg.ID,
			"senderId":       sender.ID,
			"senderName":     sender.Name,
		},
		Mode: notifications.ModeCascade,
	})
	return true
}

// bookkeeping updates the conversation summary and unread counters. It is
// best effort: the message is already persisted.
func (e *Engine) bookkeeping(ctx context.Context, msg community.Message, conv community.Conversation) {
	summary := community.MessageSummary{
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Content:   preview(msg.Content, len(msg.Attachments)),
		CreatedAt: msg.CreatedAt,
	}
	if err := e.conversations.UpdateLastMessage(ctx, msg.ConversationID, summary); err != nil {
		e.log.LogAttrs(ctx, slog.LevelWarn, "failed to update last message",
			logger.ConversationID(msg.ConversationID),
			logger.Error(err),
		)
	}

	others := lo.Without(conv.ParticipantIDs(), msg.SenderID)
	if len(others) == 0 {
		return
	}
	if err := e.conversations.IncrementUnread(ctx, msg.ConversationID, others); err != nil {
		e.log.LogAttrs(ctx, slog.LevelWarn, "failed to increment unread counters",
			logger.ConversationID(msg.ConversationID),
			logger.Error(err),
		)
	}
}

func preview(content string, attachments int) string {
	content = strings.TrimSpace(content)
	if content == "" && attachments > 0 {
		return "Sent an attachment"
	}
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewRunes-1]) + "…"
}
