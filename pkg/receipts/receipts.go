// Package receipts records message reads and tells the original sender.
//
// A read is a set union on the message's reader list. Only a real
// transition produces a message_read_by event and only the sender's live
// connections receive it; the reader's other devices get nothing.
package receipts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/conn"
	"github.com/dmitrymomot/pulse/pkg/events"
	"github.com/dmitrymomot/pulse/pkg/logger"
)

// Connections yields the live connections of an identity.
type Connections interface {
	ConnectionsFor(userID string) []*conn.Conn
}

// Result describes one MarkRead call.
type Result struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	// Own is set when the reader sent the message; nothing is recorded.
	Own bool `json:"own,omitempty"`
	// Changed is set when the reader was not in the read set yet.
	Changed bool `json:"changed"`
	// Notified counts sender connections that accepted the receipt.
	Notified int `json:"notified"`
}

// ConversationResult describes one MarkConversationRead call.
type ConversationResult struct {
	ConversationID string `json:"conversationId"`
	Marked         int    `json:"marked"`
	Notified       int    `json:"notified"`
}

// Propagator applies reads and emits receipts.
type Propagator struct {
	messages      community.MessageStore
	conversations community.ConversationStore
	directory     community.IdentityDirectory
	conns         Connections
	now           func() time.Time
	log           *slog.Logger
}

type Option func(*Propagator)

// WithDirectory resolves reader names for the receipt payload.
func WithDirectory(d community.IdentityDirectory) Option {
	return func(p *Propagator) { p.directory = d }
}

func WithClock(now func() time.Time) Option {
	return func(p *Propagator) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Propagator) {
		if l != nil {
			p.log = l
		}
	}
}

func New(messages community.MessageStore, conversations community.ConversationStore, conns Connections, opts ...Option) *Propagator {
	p := &Propagator{
		messages:      messages,
		conversations: conversations,
		conns:         conns,
		now:           time.Now,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MarkRead records that readerID read messageID. Repeated calls are no-ops.
func (p *Propagator) MarkRead(ctx context.Context, messageID, readerID string) (Result, error) {
	if messageID == "" || readerID == "" {
		return Result{}, ErrInvalidRequest
	}
	msg, err := p.messages.Message(ctx, messageID)
	if err != nil {
		return Result{}, lookupErr(err)
	}
	if msg.SenderID == readerID {
		return Result{MessageID: msg.ID, ConversationID: msg.ConversationID, Own: true}, nil
	}
	if err := p.authorize(ctx, msg.ConversationID, readerID); err != nil {
		return Result{}, err
	}
	return p.apply(ctx, msg, readerID, p.reader(ctx, readerID))
}

// MarkConversationRead marks every message of the conversation not yet read
// by readerID and resets their unread counter.
func (p *Propagator) MarkConversationRead(ctx context.Context, conversationID, readerID string) (ConversationResult, error) {
	if conversationID == "" || readerID == "" {
		return ConversationResult{}, ErrInvalidRequest
	}
	if err := p.authorize(ctx, conversationID, readerID); err != nil {
		return ConversationResult{}, err
	}

	unread, err := p.messages.UnreadFor(ctx, conversationID, readerID)
	if err != nil {
		return ConversationResult{}, lookupErr(err)
	}

	out := ConversationResult{ConversationID: conversationID}
	reader := p.reader(ctx, readerID)
	for _, msg := range unread {
		res, err := p.apply(ctx, msg, readerID, reader)
		if err != nil {
			return out, err
		}
		if res.Changed {
			out.Marked++
		}
		out.Notified += res.Notified
	}

	if err := p.conversations.ResetUnread(ctx, conversationID, readerID); err != nil {
		p.log.LogAttrs(ctx, slog.LevelWarn, "failed to reset unread counter",
			logger.ConversationID(conversationID),
			logger.UserID(readerID),
			logger.Error(err),
		)
	}
	return out, nil
}

func (p *Propagator) apply(ctx context.Context, msg community.Message, readerID string, reader events.Reader) (Result, error) {
	res := Result{MessageID: msg.ID, ConversationID: msg.ConversationID}

	changed, err := p.messages.AddReader(ctx, msg.ID, readerID)
	if err != nil {
		return Result{}, lookupErr(err)
	}
	if !changed {
		return res, nil
	}
	res.Changed = true

	targets := p.conns.ConnectionsFor(msg.SenderID)
	if len(targets) == 0 {
		return res, nil
	}
	env := events.New(events.MessageReadBy, events.MessageReadByPayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		ReadBy:         reader,
		ReadAt:         p.now(),
	})
	for _, c := range targets {
		if c.Send(env) == nil {
			res.Notified++
		}
	}

	p.log.LogAttrs(ctx, slog.LevelDebug, "read receipt sent",
		logger.MessageID(msg.ID),
		logger.UserID(readerID),
		logger.Count(res.Notified),
	)
	return res, nil
}

func (p *Propagator) authorize(ctx context.Context, conversationID, readerID string) error {
	ok, err := p.conversations.IsParticipant(ctx, conversationID, readerID)
	if err != nil {
		return lookupErr(err)
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

func (p *Propagator) reader(ctx context.Context, userID string) events.Reader {
	r := events.Reader{ID: userID, Name: userID}
	if p.directory == nil {
		return r
	}
	if id, err := p.directory.Identity(ctx, userID); err == nil && id.DisplayName != "" {
		r.Name = id.DisplayName
	}
	return r
}

// lookupErr keeps not-found errors recognizable for callers mapping to 404.
func lookupErr(err error) error {
	if errors.Is(err, community.ErrNotFound) {
		return err
	}
	return errors.Join(ErrLookup, err)
}
