package binder_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pulse/pkg/binder"
)

type sendRequest struct {
	UserID  string         `json:"userId"`
	Title   string         `json:"title"`
	Data    map[string]any `json:"data,omitempty"`
	Channel []string       `json:"channels,omitempty"`
}

func TestJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		wantErr     error
		want        sendRequest
	}{
		{
			name:        "valid",
			contentType: "application/json",
			body:        `{"userId":"u1","title":"hi","channels":["push","sms"]}`,
			want:        sendRequest{UserID: "u1", Title: "hi", Channel: []string{"push", "sms"}},
		},
		{
			name:        "charset parameter",
			contentType: "application/json; charset=utf-8",
			body:        `{"userId":"u1"}`,
			want:        sendRequest{UserID: "u1"},
		},
		{name: "missing content type", body: `{}`, wantErr: binder.ErrMissingContentType},
		{name: "wrong content type", contentType: "text/plain", body: `{}`, wantErr: binder.ErrUnsupportedMediaType},
		{name: "empty body", contentType: "application/json", wantErr: binder.ErrFailedToParseJSON},
		{name: "malformed", contentType: "application/json", body: `{"userId":`, wantErr: binder.ErrFailedToParseJSON},
		{name: "unknown field", contentType: "application/json", body: `{"nope":1}`, wantErr: binder.ErrFailedToParseJSON},
		{name: "trailing data", contentType: "application/json", body: `{"userId":"u1"}{}`, wantErr: binder.ErrFailedToParseJSON},
		{name: "type mismatch", contentType: "application/json", body: `{"userId":5}`, wantErr: binder.ErrFailedToParseJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			var got sendRequest
			err := binder.JSON()(req, &got)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONWithLimit(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"`+strings.Repeat("a", 64)+`"}`))
	req.Header.Set("Content-Type", "application/json")

	var got sendRequest
	err := binder.JSONWithLimit(32)(req, &got)
	require.ErrorIs(t, err, binder.ErrFailedToParseJSON)
	assert.Contains(t, err.Error(), "too large")
}

type listRequest struct {
	UserID string   `path:"id"`
	Limit  int      `query:"limit"`
	Unread *bool    `query:"unread"`
	Kinds  []string `query:"kind"`
	Skip   string   `query:"-"`
	Body   string   `json:"body"`
}

func TestQuery(t *testing.T) {
	t.Parallel()

	t.Run("binds tagged fields", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/?limit=20&unread=true&kind=message,alert&kind=system&Skip=x&body=y", nil)

		var got listRequest
		require.NoError(t, binder.Query()(req, &got))
		assert.Equal(t, 20, got.Limit)
		require.NotNil(t, got.Unread)
		assert.True(t, *got.Unread)
		assert.Equal(t, []string{"message", "alert", "system"}, got.Kinds)
		assert.Empty(t, got.Skip)
		assert.Empty(t, got.Body)
	})

	t.Run("absent optional stays nil", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		var got listRequest
		require.NoError(t, binder.Query()(req, &got))
		assert.Nil(t, got.Unread)
		assert.Zero(t, got.Limit)
	})

	t.Run("invalid number", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/?limit=ten", nil)

		var got listRequest
		require.ErrorIs(t, binder.Query()(req, &got), binder.ErrFailedToParseQuery)
	})

	t.Run("non pointer target", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		require.ErrorIs(t, binder.Query()(req, listRequest{}), binder.ErrFailedToParseQuery)
	})
}

func TestPath(t *testing.T) {
	t.Parallel()

	params := map[string]string{"id": "user-1"}
	extract := func(_ *http.Request, name string) string { return params[name] }

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	var got listRequest
	require.NoError(t, binder.Path(extract)(req, &got))
	assert.Equal(t, "user-1", got.UserID)

	require.ErrorIs(t, binder.Path(nil)(req, &got), binder.ErrFailedToParsePath)
}
