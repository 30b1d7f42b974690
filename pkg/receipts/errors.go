package receipts

import "errors"

var (
	ErrInvalidRequest = errors.New("receipts: message and reader are required")
	ErrNotParticipant = errors.New("receipts: reader is not a participant of the conversation")
	ErrLookup         = errors.New("receipts: persistence lookup failed")
)
