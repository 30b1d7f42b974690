package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/pulse/pkg/binder"
	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/handler"
	"github.com/dmitrymomot/pulse/pkg/logger"
	"github.com/dmitrymomot/pulse/pkg/notifications"
)

const maxListLimit = 500

type hctx = handler.Context

func wrap[R any](a *API, h handler.HandlerFunc[hctx, R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[hctx, R](binders...),
		handler.WithErrorHandler[hctx, R](handler.NewErrorHandler(a.log)),
	)
}

func pathParams() handler.Bind {
	return binder.Path(chi.URLParam)
}

func (a *API) sendNotification() http.HandlerFunc {
	return wrap[notifications.Request](a, func(c hctx, req notifications.Request) handler.Response {
		if a.dispatcher == nil {
			return handler.Error(errNotConfigured)
		}
		n, err := a.dispatcher.Send(c, req)
		if err != nil {
			return fail(err)
		}
		return handler.JSON(n)
	}, binder.JSON())
}

type listRequest struct {
	UserID string `path:"id"`
	Limit  int    `query:"limit"`
	Unread bool   `query:"unread"`
}

func (a *API) listNotifications() http.HandlerFunc {
	return wrap[listRequest](a, func(c hctx, req listRequest) handler.Response {
		if req.Limit < 0 {
			verr := handler.NewValidationError()
			verr.Add("limit", "must not be negative")
			return handler.Error(verr)
		}
		list, err := a.store.List(c, req.UserID, notifications.ListOptions{
			Limit:      min(req.Limit, maxListLimit),
			OnlyUnread: req.Unread,
		})
		if err != nil {
			return fail(err)
		}
		unread, err := a.store.CountUnread(c, req.UserID)
		if err != nil {
			return fail(err)
		}
		return handler.JSON(list, handler.WithJSONMeta(map[string]any{
			"count":  len(list),
			"unread": unread,
		}))
	}, pathParams(), binder.Query())
}

type idRequest struct {
	ID string `path:"id"`
}

func (a *API) markNotificationRead() http.HandlerFunc {
	return wrap[idRequest](a, func(c hctx, req idRequest) handler.Response {
		n, err := a.store.MarkReadByID(c, req.ID)
		if err != nil {
			return fail(err)
		}
		return handler.JSON(n)
	}, pathParams())
}

// Stats aggregates the notification buffer with live connection counts.
type Stats struct {
	notifications.StoreStats
	ConnectedUsers      int `json:"connectedUsers"`
	Connections         int `json:"connections"`
	ActiveConversations int `json:"activeConversations"`
}

func (a *API) stats() http.HandlerFunc {
	return wrap[struct{}](a, func(c hctx, _ struct{}) handler.Response {
		st, err := a.store.Stats(c)
		if err != nil {
			return fail(err)
		}
		out := Stats{StoreStats: st}
		if a.live != nil {
			live := a.live.Count()
			out.ConnectedUsers = live.Users
			out.Connections = live.Connections
		}
		if a.rooms != nil {
			out.ActiveConversations = a.rooms.ActiveRooms()
		}
		return handler.JSON(out)
	})
}

type dispatchRequest struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversationId"`
	SenderID       string                 `json:"senderId"`
	Content        string                 `json:"content"`
	Attachments    []community.Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

func (r dispatchRequest) message() community.Message {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return community.Message{
		ID:             strings.TrimSpace(r.ID),
		ConversationID: strings.TrimSpace(r.ConversationID),
		SenderID:       strings.TrimSpace(r.SenderID),
		Content:        r.Content,
		Attachments:    r.Attachments,
		CreatedAt:      createdAt,
	}
}

func (a *API) dispatchMessage() http.HandlerFunc {
	return wrap[dispatchRequest](a, func(c hctx, req dispatchRequest) handler.Response {
		if a.fanout == nil {
			return handler.Error(errNotConfigured)
		}
		msg := req.message()
		if a.messages != nil {
			// only messages the fan-out would accept are persisted
			if err := a.fanout.Authorize(c, msg); err != nil {
				return fail(err)
			}
			if err := a.messages.SaveMessage(c, msg); err != nil {
				a.log.LogAttrs(c, slog.LevelWarn, "failed to save dispatched message",
					logger.MessageID(msg.ID),
					logger.Error(err),
				)
			}
		}
		report, err := a.fanout.Dispatch(c, msg)
		if err != nil {
			return fail(err)
		}
		return handler.JSON(report, handler.WithJSONStatus(http.StatusAccepted))
	}, binder.JSON())
}

type messageReadRequest struct {
	MessageID string `path:"id"`
	ReaderID  string `json:"readerId"`
}

func (a *API) markMessageRead() http.HandlerFunc {
	return wrap[messageReadRequest](a, func(c hctx, req messageReadRequest) handler.Response {
		if a.receipts == nil {
			return handler.Error(errNotConfigured)
		}
		res, err := a.receipts.MarkRead(context.WithoutCancel(c), req.MessageID, strings.TrimSpace(req.ReaderID))
		if err != nil {
			return fail(err)
		}
		return handler.JSON(res)
	}, binder.JSON(), pathParams())
}
