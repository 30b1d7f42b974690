package fanout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pulse/pkg/async"
	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/conn"
	"github.com/dmitrymomot/pulse/pkg/conn/conntest"
	"github.com/dmitrymomot/pulse/pkg/events"
	"github.com/dmitrymomot/pulse/pkg/fanout"
	"github.com/dmitrymomot/pulse/pkg/notifications"
	"github.com/dmitrymomot/pulse/pkg/registry"
	"github.com/dmitrymomot/pulse/pkg/rooms"
)

type recordingNotifier struct {
	mu       sync.Mutex
	requests []notifications.Request
}

func (n *recordingNotifier) Go(_ context.Context, req notifications.Request) *async.Future[notifications.Notification] {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, req)
	return async.Resolved(notifications.Notification{RecipientID: req.UserID}, nil)
}

func (n *recordingNotifier) recipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.requests))
	for _, r := range n.requests {
		out = append(out, r.UserID)
	}
	return out
}

type fixture struct {
	store    *community.Memory
	reg      *registry.Registry
	index    *rooms.Index
	notifier *recordingNotifier
	engine   *fanout.Engine
}

func newFixture(t *testing.T, directory community.IdentityDirectory) *fixture {
	t.Helper()
	f := &fixture{
		store:    community.NewMemory(),
		reg:      registry.New(),
		notifier: &recordingNotifier{},
	}
	f.index = rooms.New(rooms.WithConversations(f.store))
	f.store.PutConversation(community.Conversation{
		ID: "c1",
		Participants: []community.Participant{
			{UserID: "alice"}, {UserID: "bob"}, {UserID: "carol"}, {UserID: "dave"},
		},
	})
	f.engine = fanout.New(f.index, f.reg, f.store,
		fanout.WithDirectory(directory),
		fanout.WithNotifier(f.notifier),
	)
	return f
}

func (f *fixture) connect(t *testing.T, userID string) (*conn.Conn, *conntest.Recorder) {
	t.Helper()
	c, rec := conntest.Open(t, userID)
	_, err := f.reg.Register(context.Background(), c)
	require.NoError(t, err)
	_, err = f.index.Join(c, "c1")
	require.NoError(t, err)
	return c, rec
}

func directory() *community.MemoryDirectory {
	return community.NewMemoryDirectory(
		community.Identity{UserID: "alice", DisplayName: "Alice"},
		community.Identity{UserID: "bob", DisplayName: "Bob", Avatar: "https://example.com/bob.png"},
		community.Identity{UserID: "carol", DisplayName: "Carol"},
		community.Identity{
			UserID:      "dave",
			DisplayName: "Dave",
			Toggles:     map[community.Kind]bool{community.KindMessage: false},
		},
	)
}

func message() community.Message {
	return community.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "bob",
		Content:        "hello there",
		CreatedAt:      time.Now(),
	}
}

func TestDispatch_MultiDeviceScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t, directory())
	a1, r1 := f.connect(t, "alice")
	a2, r2 := f.connect(t, "alice")
	b1, rb := f.connect(t, "bob")

	report, err := f.engine.Dispatch(context.Background(), message())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Delivered)
	assert.Zero(t, report.Failed)

	conntest.Settle(t, a1, a2, b1)
	for _, rec := range []*conntest.Recorder{r1, r2} {
		got := rec.Named(events.NewMessage)
		require.Len(t, got, 1, "exactly one new_message per connection")
		payload := got[0].Data.(events.NewMessagePayload)
		assert.Equal(t, "m1", payload.ID)
		assert.Equal(t, events.Sender{ID: "bob", Name: "Bob", Avatar: "https://example.com/bob.png"}, payload.Sender)
	}
	assert.Empty(t, rb.Named(events.NewMessage), "sender's own connections are skipped")
}

func TestDispatch_OfflineParticipants(t *testing.T) {
	t.Parallel()

	f := newFixture(t, directory())
	f.connect(t, "alice")
	f.connect(t, "bob")

	report, err := f.engine.Dispatch(context.Background(), message())
	require.NoError(t, err)

	assert.Equal(t, []string{"carol"}, report.Queued)
	assert.Equal(t, []string{"dave"}, report.Muted, "message toggle off")
	assert.Equal(t, []string{"carol"}, f.notifier.recipients())

	req := f.notifier.requests[0]
	assert.Equal(t, community.KindMessage, req.Kind)
	assert.Equal(t, "Bob", req.Title)
	assert.Equal(t, "hello there", req.Message)
	assert.Equal(t, "c1", req.Payload["conversationId"])
}

func TestDispatch_SenderOfflineIsNeverNotified(t *testing.T) {
	t.Parallel()

	f := newFixture(t, directory())
	report, err := f.engine.Dispatch(context.Background(), message())
	require.NoError(t, err)
	assert.NotContains(t, report.Queued, "bob")
	assert.ElementsMatch(t, []string{"alice", "carol"}, report.Queued)
}

func TestDispatch_SnapshotExcludesLateJoiners(t *testing.T) {
	t.Parallel()

	f := newFixture(t, directory())
	a1, r1 := f.connect(t, "alice")

	_, err := f.engine.Dispatch(context.Background(), message())
	require.NoError(t, err)

	late, lateRec := f.connect(t, "carol")
	conntest.Settle(t, a1, late)
	assert.Len(t, r1.Named(events.NewMessage), 1)
	assert.Empty(t, lateRec.Named(events.NewMessage))
}

func TestDispatch_FailingConnectionIsIsolated(t *testing.T) {
	t.Parallel()

	f := newFixture(t, directory())
	healthy, rec := f.connect(t, "alice")

	stuck := conn.New("carol", conntest.NewRecorder(true), conn.WithQueueSize(1))
	_, err := f.reg.Register(context.Background(), stuck)
	require.NoError(t, err)
	_, err = f.index.Join(stuck, "c1")
	require.NoError(t, err)

	// no writer pump: the first envelope fills the queue
	msg := message()
	_, err = f.engine.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	msg.ID = "m2"
	report, err := f.engine.Dispatch(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Failed)
	assert.True(t, stuck.Unhealthy())

	conntest.Settle(t, healthy)
	assert.Len(t, rec.Named(events.NewMessage), 2)
}

func TestDispatch_Bookkeeping(t *testing.T) {
	t.Parallel()

	f := newFixture(t, directory())
	_, err := f.engine.Dispatch(context.Background(), message())
	require.NoError(t, err)

	conv, err := f.store.Conversation(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "m1", conv.LastMessage.MessageID)
	for _, p := range conv.Participants {
		if p.UserID == "bob" {
			assert.Zero(t, p.Unread)
			continue
		}
		assert.Equal(t, 1, p.Unread, p.UserID)
	}
}

func TestAuthorize_AcceptsParticipant(t *testing.T) {
	t.Parallel()

	f := newFixture(t, directory())
	assert.NoError(t, f.engine.Authorize(context.Background(), message()))
}

func TestDispatch_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, directory())

	tests := []struct {
		name    string
		mutate  func(*community.Message)
		wantErr error
	}{
		{name: "missing id", mutate: func(m *community.Message) { m.ID = "" }, wantErr: fanout.ErrInvalidMessage},
		{name: "unknown conversation", mutate: func(m *community.Message) { m.ConversationID = "nope" }, wantErr: community.ErrConversationNotFound},
		{name: "sender outside conversation", mutate: func(m *community.Message) { m.SenderID = "mallory" }, wantErr: fanout.ErrSenderNotInRoom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := message()
			tt.mutate(&msg)
			assert.ErrorIs(t, f.engine.Authorize(context.Background(), msg), tt.wantErr)
			_, err := f.engine.Dispatch(context.Background(), msg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

type brokenDirectory struct{}

func (brokenDirectory) Identity(context.Context, string) (community.Identity, error) {
	return community.Identity{}, errors.New("directory down")
}

func TestDispatch_DirectoryFailureDegrades(t *testing.T) {
	t.Parallel()

	f := newFixture(t, brokenDirectory{})
	a1, rec := f.connect(t, "alice")

	report, err := f.engine.Dispatch(context.Background(), message())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Empty(t, report.Queued, "recipients cannot be resolved")

	conntest.Settle(t, a1)
	payload := rec.Named(events.NewMessage)[0].Data.(events.NewMessagePayload)
	assert.Equal(t, "bob", payload.Sender.Name)
}

func TestDispatch_ConcurrentDispatches(t *testing.T) {
	t.Parallel()

	f := newFixture(t, directory())
	a1, rec := f.connect(t, "alice")

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := message()
			msg.ID = string(rune('a' + i))
			_, err := f.engine.Dispatch(context.Background(), msg)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	conntest.Settle(t, a1)
	got := rec.Named(events.NewMessage)
	require.Len(t, got, n)
	seen := make(map[string]bool, n)
	for _, env := range got {
		id := env.Data.(events.NewMessagePayload).ID
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}
