package fanout

import "errors"

var (
	ErrInvalidMessage     = errors.New("fanout: message must have id, conversation and sender")
	ErrConversationLookup = errors.New("fanout: failed to load conversation")
	ErrSenderNotInRoom    = errors.New("fanout: sender is not a participant of the conversation")
)
