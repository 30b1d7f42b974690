package events

import "errors"

var (
	ErrUnknownEvent   = errors.New("events: unknown event")
	ErrInvalidPayload = errors.New("events: invalid payload")
)
