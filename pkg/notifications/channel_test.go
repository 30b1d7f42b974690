package notifications_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/conn"
	"github.com/dmitrymomot/pulse/pkg/conn/conntest"
	"github.com/dmitrymomot/pulse/pkg/email"
	"github.com/dmitrymomot/pulse/pkg/events"
	"github.com/dmitrymomot/pulse/pkg/notifications"
	"github.com/dmitrymomot/pulse/pkg/sns"
)

type connSet map[string][]*conn.Conn

func (s connSet) ConnectionsFor(userID string) []*conn.Conn { return s[userID] }

type MockSender struct{ mock.Mock }

func (m *MockSender) SendEmail(ctx context.Context, msg email.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockSender) SendPush(ctx context.Context, endpoint string, p sns.Push) error {
	return m.Called(ctx, endpoint, p).Error(0)
}

func (m *MockSender) SendSMS(ctx context.Context, phone, body string) error {
	return m.Called(ctx, phone, body).Error(0)
}

func rendered() notifications.Rendered {
	return notifications.Rendered{
		NotificationID: "n1",
		RecipientID:    "alice",
		Kind:           community.KindFriendRequest,
		Title:          "New friend request",
		Body:           "Bob wants to be your friend",
		Data:           map[string]any{"url": "https://example.com/friends", "action": "Review"},
		CreatedAt:      time.Now(),
	}
}

func TestRealtime_DeliversToEveryConnection(t *testing.T) {
	t.Parallel()

	c1, r1 := conntest.Open(t, "alice")
	c2, r2 := conntest.Open(t, "alice")
	ch := notifications.NewRealtime(connSet{"alice": {c1, c2}})

	require.NoError(t, ch.Deliver(context.Background(), "alice", rendered()))
	conntest.Settle(t, c1, c2)

	for _, rec := range []*conntest.Recorder{r1, r2} {
		got := rec.Named(events.NotificationCreated)
		require.Len(t, got, 1)
		payload, ok := got[0].Data.(events.NotificationPayload)
		require.True(t, ok)
		assert.Equal(t, "n1", payload.ID)
		assert.Equal(t, "friend_request", payload.Type)
	}
}

func TestRealtime_OfflineFails(t *testing.T) {
	t.Parallel()

	c, _ := conntest.Open(t, "alice")
	require.NoError(t, c.Close())

	ch := notifications.NewRealtime(connSet{"alice": {c}})
	err := ch.Deliver(context.Background(), "alice", rendered())
	assert.ErrorIs(t, err, notifications.ErrRecipientOffline)
	assert.ErrorIs(t, err, notifications.ErrChannelFailed)

	err = ch.Deliver(context.Background(), "bob", rendered())
	assert.ErrorIs(t, err, notifications.ErrRecipientOffline)
}

func TestPush_AddsNotificationMetadata(t *testing.T) {
	t.Parallel()

	sender := &MockSender{}
	sender.On("SendPush", mock.Anything, "arn:endpoint", mock.MatchedBy(func(p sns.Push) bool {
		return p.Title == "New friend request" &&
			p.Data["notificationId"] == "n1" &&
			p.Data["type"] == "friend_request" &&
			p.Data["url"] == "https://example.com/friends"
	})).Return(nil).Once()

	ch := notifications.NewPush(sender)
	require.NoError(t, ch.Deliver(context.Background(), "arn:endpoint", rendered()))
	sender.AssertExpectations(t)
}

func TestSMS_WrapsFailures(t *testing.T) {
	t.Parallel()

	sender := &MockSender{}
	sender.On("SendSMS", mock.Anything, "+15550001111", "Bob wants to be your friend").
		Return(sns.ErrThrottled).Once()

	ch := notifications.NewSMS(sender)
	err := ch.Deliver(context.Background(), "+15550001111", rendered())
	assert.ErrorIs(t, err, notifications.ErrChannelFailed)
	assert.ErrorIs(t, err, sns.ErrThrottled)
	sender.AssertExpectations(t)
}

func TestEmail_RendersLayout(t *testing.T) {
	t.Parallel()

	sender := &MockSender{}
	var sent email.Message
	sender.On("SendEmail", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(email.Message) }).
		Return(nil).Once()

	ch := notifications.NewEmail(sender, "You receive this because you joined.")
	require.NoError(t, ch.Deliver(context.Background(), "alice@example.com", rendered()))

	assert.Equal(t, "alice@example.com", sent.To)
	assert.Equal(t, "New friend request", sent.Subject)
	assert.Equal(t, "friend_request", sent.Tag)
	assert.Equal(t, "Bob wants to be your friend", sent.Text)
	assert.Contains(t, sent.HTML, "Bob wants to be your friend")
	assert.Contains(t, sent.HTML, "https://example.com/friends")
	assert.Contains(t, sent.HTML, "Review")
	assert.Contains(t, sent.HTML, "You receive this because you joined.")
}

func TestEmail_SendFailure(t *testing.T) {
	t.Parallel()

	sender := &MockSender{}
	sender.On("SendEmail", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

	err := notifications.NewEmail(sender, "").Deliver(context.Background(), "alice@example.com", rendered())
	assert.ErrorIs(t, err, notifications.ErrChannelFailed)
}
