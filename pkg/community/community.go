package community

import (
	"context"
	"time"
)

// IdentityDirectory resolves identities. Unknown ids yield ErrIdentityNotFound.
type IdentityDirectory interface {
	Identity(ctx context.Context, userID string) (Identity, error)
}

// ConversationStore is the conversation side of the persistence collaborator.
type ConversationStore interface {
	// ConversationsFor lists the ids of every conversation userID takes part in.
	ConversationsFor(ctx context.Context, userID string) ([]string, error)
	Conversation(ctx context.Context, conversationID string) (Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	// TouchLastSeen stamps lastSeenAt for userID in every conversation.
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
	UpdateLastMessage(ctx context.Context, conversationID string, summary MessageSummary) error
	// IncrementUnread bumps the unread counter of the given participants.
	IncrementUnread(ctx context.Context, conversationID string, userIDs []string) error
	ResetUnread(ctx context.Context, conversationID, userID string) error
}

// MessageStore is the message side of the persistence collaborator.
type MessageStore interface {
	Message(ctx context.Context, messageID string) (Message, error)
	// AddReader merges readerID into the read set and reports whether the
	// set changed.
	AddReader(ctx context.Context, messageID, readerID string) (bool, error)
	// UnreadFor returns messages of the conversation not yet read by userID
	// and not sent by them.
	UnreadFor(ctx context.Context, conversationID, userID string) ([]Message, error)
}
