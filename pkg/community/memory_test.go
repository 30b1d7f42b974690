package community_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pulse/pkg/community"
)

func seed() *community.Memory {
	m := community.NewMemory()
	m.PutConversation(community.Conversation{
		ID: "c1",
		Participants: []community.Participant{
			{UserID: "alice", Role: community.RoleAdmin},
			{UserID: "bob", Role: community.RoleMember},
		},
	})
	m.PutConversation(community.Conversation{
		ID:           "c2",
		Participants: []community.Participant{{UserID: "bob"}},
	})
	m.PutMessage(community.Message{ID: "m1", ConversationID: "c1", SenderID: "bob", CreatedAt: time.Unix(1, 0)})
	m.PutMessage(community.Message{ID: "m2", ConversationID: "c1", SenderID: "bob", CreatedAt: time.Unix(2, 0)})
	m.PutMessage(community.Message{ID: "m3", ConversationID: "c1", SenderID: "alice", CreatedAt: time.Unix(3, 0)})
	return m
}

func TestMemory_Conversations(t *testing.T) {
	t.Parallel()

	m := seed()
	ctx := context.Background()

	ids, err := m.ConversationsFor(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)

	ok, err := m.IsParticipant(ctx, "c2", "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.IsParticipant(ctx, "missing", "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.Conversation(ctx, "missing")
	assert.ErrorIs(t, err, community.ErrNotFound)

	require.NoError(t, m.IncrementUnread(ctx, "c1", []string{"alice"}))
	require.NoError(t, m.IncrementUnread(ctx, "c1", []string{"alice"}))
	now := time.Now()
	require.NoError(t, m.TouchLastSeen(ctx, "alice", now))
	require.NoError(t, m.UpdateLastMessage(ctx, "c1", community.MessageSummary{MessageID: "m3"}))

	c, err := m.Conversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Participants[0].Unread)
	assert.Equal(t, now, c.Participants[0].LastSeenAt)
	assert.Equal(t, "m3", c.LastMessage.MessageID)
	assert.Equal(t, []string{"alice", "bob"}, c.ParticipantIDs())

	require.NoError(t, m.ResetUnread(ctx, "c1", "alice"))
	c, err = m.Conversation(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, c.Participants[0].Unread)
}

func TestMemory_AddReaderIsSetUnion(t *testing.T) {
	t.Parallel()

	m := seed()
	ctx := context.Background()

	changed, err := m.AddReader(ctx, "m1", "alice")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = m.AddReader(ctx, "m1", "alice")
	require.NoError(t, err)
	assert.False(t, changed)

	msg, err := m.Message(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, msg.ReadBy)

	_, err = m.AddReader(ctx, "missing", "alice")
	assert.ErrorIs(t, err, community.ErrMessageNotFound)

	unread, err := m.UnreadFor(ctx, "c1", "alice")
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "m2", unread[0].ID)
}

func TestIdentity_Allows(t *testing.T) {
	t.Parallel()

	id := community.Identity{Toggles: map[community.Kind]bool{community.KindMessage: false, community.KindAlert: true}}
	assert.False(t, id.Allows(community.KindMessage))
	assert.True(t, id.Allows(community.KindAlert))
	assert.True(t, id.Allows(community.KindEvent))

	d := community.NewMemoryDirectory(community.Identity{UserID: "u1", DisplayName: "U"})
	got, err := d.Identity(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "U", got.DisplayName)
	_, err = d.Identity(context.Background(), "u2")
	assert.ErrorIs(t, err, community.ErrIdentityNotFound)
}
