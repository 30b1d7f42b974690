package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/fanout"
	"github.com/dmitrymomot/pulse/pkg/handler"
	"github.com/dmitrymomot/pulse/pkg/notifications"
	"github.com/dmitrymomot/pulse/pkg/receipts"
)

var (
	errFatalConfiguration = handler.HTTPError{Code: http.StatusInternalServerError, Key: "fatal_configuration"}
	errNotConfigured      = handler.ErrServiceUnavailable.WithMessage("endpoint is not configured")
)

// httpError maps domain failures onto the HTTP error envelope. Unknown
// errors report false and render as opaque 500s.
func httpError(err error) (handler.HTTPError, bool) {
	switch {
	case errors.Is(err, notifications.ErrInvalidRequest),
		errors.Is(err, fanout.ErrInvalidMessage),
		errors.Is(err, receipts.ErrInvalidRequest):
		return handler.ErrBadRequest.WithMessage(err.Error()), true
	case errors.Is(err, notifications.ErrFatalConfiguration):
		return errFatalConfiguration.WithMessage(err.Error()), true
	case errors.Is(err, notifications.ErrNotFound):
		return handler.ErrNotFound.WithMessage("notification not found"), true
	case errors.Is(err, community.ErrConversationNotFound):
		return handler.ErrNotFound.WithMessage("conversation not found"), true
	case errors.Is(err, community.ErrMessageNotFound):
		return handler.ErrNotFound.WithMessage("message not found"), true
	case errors.Is(err, community.ErrNotFound):
		return handler.ErrNotFound, true
	case errors.Is(err, fanout.ErrSenderNotInRoom),
		errors.Is(err, receipts.ErrNotParticipant):
		return handler.ErrForbidden.WithMessage(err.Error()), true
	case errors.Is(err, notifications.ErrRecipientLookup),
		errors.Is(err, fanout.ErrConversationLookup),
		errors.Is(err, receipts.ErrLookup):
		return handler.ErrBadGateway.WithMessage("persistence lookup failed"), true
	}
	return handler.HTTPError{}, false
}

// failure keeps the original error for logging while rendering the mapped
// one.
type failure struct {
	cause  error
	mapped handler.HTTPError
}

func (f failure) Error() string   { return f.cause.Error() }
func (f failure) Unwrap() []error { return []error{f.mapped, f.cause} }

func fail(err error) handler.Response {
	if mapped, ok := httpError(err); ok {
		return handler.Error(failure{cause: err, mapped: mapped})
	}
	return handler.Error(err)
}
