package community

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryDirectory is an IdentityDirectory backed by a map.
type MemoryDirectory struct {
	mu         sync.RWMutex
	identities map[string]Identity
}

func NewMemoryDirectory(identities ...Identity) *MemoryDirectory {
	d := &MemoryDirectory{identities: make(map[string]Identity, len(identities))}
	for _, id := range identities {
		d.identities[id.UserID] = id
	}
	return d
}

// Put adds or replaces an identity.
func (d *MemoryDirectory) Put(id Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identities[id.UserID] = id
}

func (d *MemoryDirectory) Identity(_ context.Context, userID string) (Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.identities[userID]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return id, nil
}

// Memory implements ConversationStore and MessageStore in process.
type Memory struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string]*Message
}

var (
	_ ConversationStore = (*Memory)(nil)
	_ MessageStore      = (*Memory)(nil)
	_ IdentityDirectory = (*MemoryDirectory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string]*Message),
	}
}

// PutConversation adds or replaces a conversation.
func (m *Memory) PutConversation(c Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Participants = slices.Clone(c.Participants)
	m.conversations[c.ID] = &c
}

// PutMessage adds or replaces a message.
func (m *Memory) PutMessage(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ReadBy = slices.Clone(msg.ReadBy)
	m.messages[msg.ID] = &msg
}

// SaveMessage stores msg unless a message with the same id exists.
func (m *Memory) SaveMessage(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[msg.ID]; ok {
		return nil
	}
	msg.ReadBy = slices.Clone(msg.ReadBy)
	m.messages[msg.ID] = &msg
	return nil
}

func (m *Memory) ConversationsFor(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, c := range m.conversations {
		if c.HasParticipant(userID) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (m *Memory) Conversation(_ context.Context, conversationID string) (Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	out := *c
	out.Participants = slices.Clone(c.Participants)
	return out, nil
}

func (m *Memory) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return false, nil
	}
	return c.HasParticipant(userID), nil
}

func (m *Memory) TouchLastSeen(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		for i := range c.Participants {
			if c.Participants[i].UserID == userID {
				c.Participants[i].LastSeenAt = at
			}
		}
	}
	return nil
}

func (m *Memory) UpdateLastMessage(_ context.Context, conversationID string, summary MessageSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	c.LastMessage = &summary
	return nil
}

func (m *Memory) IncrementUnread(_ context.Context, conversationID string, userIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	for i := range c.Participants {
		if slices.Contains(userIDs, c.Participants[i].UserID) {
			c.Participants[i].Unread++
		}
	}
	return nil
}

func (m *Memory) ResetUnread(_ context.Context, conversationID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			c.Participants[i].Unread = 0
		}
	}
	return nil
}

func (m *Memory) Message(_ context.Context, messageID string) (Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	out := *msg
	out.ReadBy = slices.Clone(msg.ReadBy)
	return out, nil
}

func (m *Memory) AddReader(_ context.Context, messageID, readerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return false, ErrMessageNotFound
	}
	if slices.Contains(msg.ReadBy, readerID) {
		return false, nil
	}
	msg.ReadBy = append(msg.ReadBy, readerID)
	return true, nil
}

func (m *Memory) UnreadFor(_ context.Context, conversationID, userID string) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Message
	for _, msg := range m.messages {
		if msg.ConversationID != conversationID || msg.SenderID == userID || msg.ReadByUser(userID) {
			continue
		}
		cp := *msg
		cp.ReadBy = slices.Clone(msg.ReadBy)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b Message) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}
