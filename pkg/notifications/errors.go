package notifications

import "errors"

var (
	ErrFatalConfiguration = errors.New("notifications: fatal configuration error")
	ErrRecipientLookup    = errors.New("notifications: recipient lookup failed")
	ErrInvalidRequest     = errors.New("notifications: invalid request")
	ErrNotFound           = errors.New("notifications: notification not found")

	ErrChannelFailed    = errors.New("notifications: channel delivery failed")
	ErrNoAddress        = errors.New("notifications: recipient has no address for channel")
	ErrUnknownChannel   = errors.New("notifications: unknown channel")
	ErrRecipientOffline = errors.New("notifications: recipient has no live connection")

	ErrTemplate = errors.New("notifications: template error")
)
