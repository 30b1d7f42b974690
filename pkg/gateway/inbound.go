package gateway

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/conn"
	"github.com/dmitrymomot/pulse/pkg/events"
	"github.com/dmitrymomot/pulse/pkg/logger"
	"github.com/dmitrymomot/pulse/pkg/receipts"
	"github.com/dmitrymomot/pulse/pkg/rooms"
	"github.com/dmitrymomot/pulse/pkg/typing"
)

func (g *Gateway) handle(ctx context.Context, c *conn.Conn, in events.Inbound) {
	var err error
	switch in.Event {
	case events.JoinConversation:
		err = g.join(ctx, c, in)
	case events.LeaveConversation:
		err = g.leave(c, in)
	case events.TypingStart, events.TypingStop:
		err = g.typingSignal(ctx, c, in)
	case events.MarkRead:
		err = g.markRead(ctx, c, in)
	case events.Ping:
		_ = c.Send(events.New(events.Pong, nil))
	default:
		err = events.ErrUnknownEvent
	}

	if err == nil {
		g.count(in.Event, "ok")
		return
	}
	code, message := classify(err)
	if code == events.CodeInternal {
		g.log.LogAttrs(ctx, slog.LevelError, "inbound event failed",
			logger.UserID(c.UserID()),
			logger.Event(in.Event),
			logger.Error(err),
		)
	}
	g.reject(c, in.Event, code, message)
}

func (g *Gateway) join(ctx context.Context, c *conn.Conn, in events.Inbound) error {
	var req events.ConversationRef
	if err := in.Bind(&req); err != nil {
		return err
	}
	if _, err := g.rooms.JoinVerified(ctx, c, req.ConversationID); err != nil {
		return err
	}
	return c.Send(events.New(events.ConversationJoined, req))
}

func (g *Gateway) leave(c *conn.Conn, in events.Inbound) error {
	var req events.ConversationRef
	if err := in.Bind(&req); err != nil {
		return err
	}
	if req.ConversationID == "" {
		return rooms.ErrEmptyConversation
	}
	if g.typing != nil && c.InRoom(req.ConversationID) {
		_, _ = g.typing.Stop(c, req.ConversationID)
	}
	g.rooms.Leave(c, req.ConversationID)
	return c.Send(events.New(events.ConversationLeft, req))
}

func (g *Gateway) typingSignal(ctx context.Context, c *conn.Conn, in events.Inbound) error {
	if g.typing == nil {
		return nil
	}
	var req events.ConversationRef
	if err := in.Bind(&req); err != nil {
		return err
	}

	var err error
	if in.Event == events.TypingStart {
		_, err = g.typing.Start(c, req.ConversationID)
	} else {
		_, err = g.typing.Stop(c, req.ConversationID)
	}
	if errors.Is(err, typing.ErrRateLimited) {
		// typing is fire-and-forget: throttled signals are dropped quietly
		g.log.LogAttrs(ctx, slog.LevelDebug, "typing throttled", logger.UserID(c.UserID()))
		return nil
	}
	return err
}

func (g *Gateway) markRead(ctx context.Context, c *conn.Conn, in events.Inbound) error {
	if g.receipts == nil {
		return events.ErrUnknownEvent
	}
	var req events.MarkReadRequest
	if err := in.Bind(&req); err != nil {
		return err
	}
	var err error
	switch {
	case req.MessageID != "":
		_, err = g.receipts.MarkRead(ctx, req.MessageID, c.UserID())
	case req.ConversationID != "":
		_, err = g.receipts.MarkConversationRead(ctx, req.ConversationID, c.UserID())
	default:
		err = receipts.ErrInvalidRequest
	}
	return err
}

func (g *Gateway) reject(c *conn.Conn, event, code, message string) {
	g.count(event, code)
	_ = c.Send(events.Fail(code, message))
}

func (g *Gateway) count(event, outcome string) {
	if g.observer == nil {
		return
	}
	if event == "" {
		event = "malformed"
	}
	g.observer.InboundEvent(event, outcome)
}

// classify maps an inbound failure to an error code. Authorization failures
// are reported but never close the session.
func classify(err error) (string, string) {
	switch {
	case errors.Is(err, events.ErrUnknownEvent):
		return events.CodeUnknownEvent, "unknown event"
	case errors.Is(err, events.ErrInvalidPayload),
		errors.Is(err, rooms.ErrEmptyConversation),
		errors.Is(err, receipts.ErrInvalidRequest):
		return events.CodeBadRequest, "invalid payload"
	case errors.Is(err, rooms.ErrNotParticipant),
		errors.Is(err, receipts.ErrNotParticipant),
		errors.Is(err, typing.ErrNotInRoom):
		return events.CodeForbidden, "not a participant of this conversation"
	case errors.Is(err, community.ErrNotFound):
		return events.CodeNotFound, "not found"
	case errors.Is(err, conn.ErrClosed), errors.Is(err, conn.ErrQueueFull):
		return events.CodeInternal, "connection is closing"
	default:
		return events.CodeInternal, "internal error"
	}
}
