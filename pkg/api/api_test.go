package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pulse/pkg/api"
	"github.com/dmitrymomot/pulse/pkg/auth"
	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/conn/conntest"
	"github.com/dmitrymomot/pulse/pkg/fanout"
	"github.com/dmitrymomot/pulse/pkg/httpserver"
	"github.com/dmitrymomot/pulse/pkg/logger"
	"github.com/dmitrymomot/pulse/pkg/notifications"
	"github.com/dmitrymomot/pulse/pkg/ratelimiter"
	"github.com/dmitrymomot/pulse/pkg/receipts"
	"github.com/dmitrymomot/pulse/pkg/registry"
	"github.com/dmitrymomot/pulse/pkg/requestid"
	"github.com/dmitrymomot/pulse/pkg/rooms"
)

type env struct {
	store    *notifications.MemoryStore
	data     *community.Memory
	reg      *registry.Registry
	rooms    *rooms.Index
	dispatch *notifications.Dispatcher
	handler  http.Handler
}

func newEnv(t *testing.T, opts ...api.Option) *env {
	t.Helper()

	e := &env{
		store: notifications.NewMemoryStore(10),
		data:  community.NewMemory(),
		reg:   registry.New(),
	}
	e.rooms = rooms.New(rooms.WithConversations(e.data))
	e.data.PutConversation(community.Conversation{
		ID:           "c1",
		Participants: []community.Participant{{UserID: "alice"}, {UserID: "bob"}},
	})
	e.data.PutMessage(community.Message{ID: "m1", ConversationID: "c1", SenderID: "bob", CreatedAt: time.Now()})

	dir := community.NewMemoryDirectory(
		community.Identity{UserID: "alice", DisplayName: "Alice"},
		community.Identity{UserID: "bob", DisplayName: "Bob"},
	)
	e.dispatch = notifications.NewDispatcher(dir,
		notifications.WithStore(e.store),
		notifications.WithChannel(notifications.NewRealtime(e.reg)),
		notifications.WithPresence(e.reg),
		notifications.WithLogger(logger.Discard()),
	)
	t.Cleanup(func() { _ = e.dispatch.Wait(context.Background()) })

	engine := fanout.New(e.rooms, e.reg, e.data,
		fanout.WithDirectory(dir),
		fanout.WithNotifier(e.dispatch),
		fanout.WithLogger(logger.Discard()),
	)
	prop := receipts.New(e.data, e.data, e.reg, receipts.WithDirectory(dir), receipts.WithLogger(logger.Discard()))

	base := []api.Option{
		api.WithDispatcher(e.dispatch),
		api.WithFanout(engine),
		api.WithReceipts(prop),
		api.WithMessageWriter(e.data),
		api.WithLiveStats(e.reg, e.rooms),
		api.WithLogger(logger.Discard()),
	}
	e.handler = api.New(e.store, append(base, opts...)...).Router()
	return e
}

type response struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]any  `json:"meta"`
	Error *struct {
		Code    string              `json:"code"`
		Message string              `json:"message"`
		Details map[string][]string `json:"details"`
	} `json:"error"`
}

func (e *env) do(t *testing.T, method, path string, body any, header ...string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var out response
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func errCode(t *testing.T, out response) string {
	t.Helper()
	require.NotNil(t, out.Error)
	return out.Error.Code
}

func TestSendNotification(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	c, rec := conntest.Open(t, "alice")
	_, err := e.reg.Register(context.Background(), c)
	require.NoError(t, err)

	resp, out := e.do(t, http.MethodPost, "/notifications/send", map[string]any{
		"userId":  "alice",
		"title":   "Hello",
		"message": "You have a friend request",
		"type":    "friend_request",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, resp.Header().Get(requestid.Header))

	var n notifications.Notification
	require.NoError(t, json.Unmarshal(out.Data, &n))
	assert.Equal(t, "alice", n.RecipientID)
	assert.Equal(t, community.KindFriendRequest, n.Kind)
	require.Len(t, n.Deliveries, 1)
	assert.True(t, n.Deliveries[0].Success)

	conntest.Settle(t, c)
	assert.Len(t, rec.Named("notification"), 1)
}

func TestSendNotification_Errors(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	tests := []struct {
		name       string
		body       any
		raw        string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing recipient",
			body:       map[string]any{"title": "x"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "bad_request",
		},
		{
			name:       "unknown mode",
			body:       map[string]any{"userId": "alice", "title": "x", "mode": "broadcast"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "bad_request",
		},
		{
			name:       "unknown field",
			body:       map[string]any{"userId": "alice", "title": "x", "priority": 1},
			wantStatus: http.StatusBadRequest,
			wantCode:   "bad_request",
		},
		{
			name:       "unknown recipient",
			body:       map[string]any{"userId": "mallory", "title": "x"},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "fatal_configuration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, out := e.do(t, http.MethodPost, "/notifications/send", tt.body)
			require.Equal(t, tt.wantStatus, resp.Code)
			assert.Equal(t, tt.wantCode, errCode(t, out))
		})
	}

	t.Run("wrong content type", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/notifications/send", bytes.NewBufferString("userId=alice"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})
}

func TestNotificationHistory(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	var ids []string
	for _, title := range []string{"one", "two", "three"} {
		n, err := e.dispatch.Send(ctx, notifications.Request{UserID: "bob", Title: title})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	resp, out := e.do(t, http.MethodGet, "/notifications/user/bob?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var list []notifications.Notification
	require.NoError(t, json.Unmarshal(out.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "three", list[0].Title)
	assert.EqualValues(t, 3, out.Meta["unread"])

	resp, out = e.do(t, http.MethodPatch, "/notifications/read/"+ids[2], nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var read notifications.Notification
	require.NoError(t, json.Unmarshal(out.Data, &read))
	assert.True(t, read.Read)
	assert.NotNil(t, read.ReadAt)

	resp, out = e.do(t, http.MethodGet, "/notifications/user/bob?unread=true", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(out.Data, &list))
	assert.Len(t, list, 2)
	assert.EqualValues(t, 2, out.Meta["unread"])

	resp, out = e.do(t, http.MethodPatch, "/notifications/read/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", errCode(t, out))

	resp, out = e.do(t, http.MethodGet, "/notifications/user/bob?limit=-1", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "validation_error", errCode(t, out))
	assert.Contains(t, out.Error.Details, "limit")

	resp, out = e.do(t, http.MethodGet, "/notifications/user/bob?limit=ten", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "bad_request", errCode(t, out))
}

func TestStats(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	c, _ := conntest.Open(t, "alice")
	_, err := e.reg.Register(ctx, c)
	require.NoError(t, err)
	_, err = e.rooms.AutoJoin(ctx, c)
	require.NoError(t, err)
	_, err = e.dispatch.Send(ctx, notifications.Request{UserID: "bob", Title: "x"})
	require.NoError(t, err)

	resp, out := e.do(t, http.MethodGet, "/notifications/stats", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var st api.Stats
	require.NoError(t, json.Unmarshal(out.Data, &st))
	assert.Equal(t, api.Stats{
		StoreStats:          notifications.StoreStats{Users: 1, Notifications: 1, Unread: 1},
		ConnectedUsers:      1,
		Connections:         1,
		ActiveConversations: 1,
	}, st)
}

func TestDispatchMessage(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	c, rec := conntest.Open(t, "bob")
	_, err := e.reg.Register(ctx, c)
	require.NoError(t, err)
	_, err = e.rooms.AutoJoin(ctx, c)
	require.NoError(t, err)

	resp, out := e.do(t, http.MethodPost, "/messages/dispatch", map[string]any{
		"id":             "m2",
		"conversationId": "c1",
		"senderId":       "alice",
		"content":        "hi bob",
	})
	require.Equal(t, http.StatusAccepted, resp.Code)

	var report fanout.Report
	require.NoError(t, json.Unmarshal(out.Data, &report))
	assert.Equal(t, 1, report.Delivered)
	assert.Empty(t, report.Queued)

	conntest.Settle(t, c)
	assert.Len(t, rec.Named("new_message"), 1)

	saved, err := e.data.Message(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, "hi bob", saved.Content)

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantCode   string
	}{
		{"missing sender", map[string]any{"id": "m3", "conversationId": "c1"}, http.StatusBadRequest, "bad_request"},
		{"not a participant", map[string]any{"id": "m3", "conversationId": "c1", "senderId": "mallory"}, http.StatusForbidden, "forbidden"},
		{"unknown conversation", map[string]any{"id": "m3", "conversationId": "c9", "senderId": "alice"}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := e.do(t, http.MethodPost, "/messages/dispatch", tt.body)
			require.Equal(t, tt.wantStatus, resp.Code)
			assert.Equal(t, tt.wantCode, errCode(t, out))

			_, err := e.data.Message(ctx, "m3")
			assert.ErrorIs(t, err, community.ErrMessageNotFound, "rejected message must not be stored")
		})
	}
}

func TestMarkMessageRead(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	c, rec := conntest.Open(t, "bob")
	_, err := e.reg.Register(context.Background(), c)
	require.NoError(t, err)

	resp, out := e.do(t, http.MethodPost, "/messages/m1/read", map[string]any{"readerId": "alice"})
	require.Equal(t, http.StatusOK, resp.Code)
	var res receipts.Result
	require.NoError(t, json.Unmarshal(out.Data, &res))
	assert.True(t, res.Changed)
	assert.Equal(t, 1, res.Notified)

	conntest.Settle(t, c)
	assert.Len(t, rec.Named("message_read_by"), 1)

	resp, out = e.do(t, http.MethodPost, "/messages/missing/read", map[string]any{"readerId": "alice"})
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", errCode(t, out))

	resp, out = e.do(t, http.MethodPost, "/messages/m1/read", map[string]any{"readerId": "mallory"})
	require.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "forbidden", errCode(t, out))
}

func TestRouter_Infrastructure(t *testing.T) {
	t.Parallel()

	down := httpserver.Check{Name: "redis", Fn: func(context.Context) error { return assert.AnError }}
	e := newEnv(t, api.WithChecks(down))

	resp, _ := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp, _ = e.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	resp, out := e.do(t, http.MethodGet, "/nowhere", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", errCode(t, out))

	resp, _ = e.do(t, http.MethodGet, "/notifications/send", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)

	resp, _ = e.do(t, http.MethodGet, "/healthz", nil, requestid.Header, "trace-42")
	assert.Equal(t, "trace-42", resp.Header().Get(requestid.Header))
}

func TestRouter_ServiceAuth(t *testing.T) {
	t.Parallel()

	jwt := auth.MustNewJWT(auth.Config{SigningKey: "service-secret"})
	e := newEnv(t, api.WithServiceAuth(jwt))

	resp, out := e.do(t, http.MethodGet, "/notifications/stats", nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "unauthorized", errCode(t, out))

	token, err := jwt.Issue("persistence-service", time.Minute)
	require.NoError(t, err)
	resp, _ = e.do(t, http.MethodGet, "/notifications/stats", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp, _ = e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	limiter, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Hour})
	require.NoError(t, err)
	e := newEnv(t, api.WithRateLimiter(limiter))

	body := map[string]any{"userId": "bob", "title": "x"}
	resp, _ := e.do(t, http.MethodPost, "/notifications/send", body)
	require.Equal(t, http.StatusOK, resp.Code)

	resp, out := e.do(t, http.MethodPost, "/notifications/send", body)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "too_many_requests", errCode(t, out))

	// reads are not throttled
	resp, _ = e.do(t, http.MethodGet, "/notifications/user/bob", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRouter_NotConfigured(t *testing.T) {
	t.Parallel()

	h := api.New(notifications.NewMemoryStore(5), api.WithLogger(logger.Discard())).Router()
	req := httptest.NewRequest(http.MethodPost, "/messages/dispatch",
		bytes.NewBufferString(`{"id":"m","conversationId":"c","senderId":"s"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
