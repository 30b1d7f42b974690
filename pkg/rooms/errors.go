package rooms

import "errors"

var (
	ErrNotParticipant    = errors.New("rooms: identity is not a participant of the conversation")
	ErrEmptyConversation = errors.New("rooms: empty conversation id")
	ErrConnectionClosed  = errors.New("rooms: connection is closed")
	ErrMembershipLookup  = errors.New("rooms: membership lookup failed")
)
