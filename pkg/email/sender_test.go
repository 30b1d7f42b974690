package email_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pulse/pkg/email"
	"github.com/dmitrymomot/pulse/pkg/email/templates"
)

func TestMessage_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		msg     email.Message
		wantErr bool
	}{
		{name: "valid html", msg: email.Message{To: "a@example.com", Subject: "Hi", HTML: "<p>x</p>"}},
		{name: "valid text only", msg: email.Message{To: "a@example.com", Subject: "Hi", Text: "x"}},
		{name: "bad recipient", msg: email.Message{To: "nope", Subject: "Hi", HTML: "x"}, wantErr: true},
		{name: "missing subject", msg: email.Message{To: "a@example.com", Subject: " ", HTML: "x"}, wantErr: true},
		{name: "missing body", msg: email.Message{To: "a@example.com", Subject: "Hi"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.msg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, email.ErrInvalidParams)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	s, err := email.New(email.Config{DevDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &email.FileSender{}, s)

	s, err = email.New(email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "noreply@example.com",
		SupportEmail:         "support@example.com",
	})
	require.NoError(t, err)
	assert.IsType(t, &email.Postmark{}, s)

	_, err = email.New(email.Config{})
	assert.ErrorIs(t, err, email.ErrInvalidConfig)
}

func TestNewPostmark_InvalidConfig(t *testing.T) {
	t.Parallel()

	base := email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "noreply@example.com",
		SupportEmail:         "support@example.com",
	}

	tests := []struct {
		name   string
		mutate func(*email.Config)
		msg    string
	}{
		{name: "server token", mutate: func(c *email.Config) { c.PostmarkServerToken = "" }, msg: "PostmarkServerToken"},
		{name: "account token", mutate: func(c *email.Config) { c.PostmarkAccountToken = "" }, msg: "PostmarkAccountToken"},
		{name: "sender", mutate: func(c *email.Config) { c.SenderEmail = "bad" }, msg: "SenderEmail"},
		{name: "support", mutate: func(c *email.Config) { c.SupportEmail = "" }, msg: "SupportEmail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			_, err := email.NewPostmark(cfg)
			assert.ErrorIs(t, err, email.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.msg)
			assert.Panics(t, func() { email.MustNewPostmark(cfg) })
		})
	}
}

func TestPostmark_RejectsInvalidMessage(t *testing.T) {
	t.Parallel()

	p := email.MustNewPostmark(email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "noreply@example.com",
		SupportEmail:         "support@example.com",
	})
	err := p.SendEmail(context.Background(), email.Message{To: "bad"})
	assert.ErrorIs(t, err, email.ErrInvalidParams)
}

func TestFileSender(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := email.NewFileSender(dir)

	html, err := templates.Render(context.Background(), templates.Notification(templates.NotificationData{
		Title:     "New message from <bob>",
		Message:   "hi & bye",
		ActionURL: "https://pulse.local/c/1",
	}))
	require.NoError(t, err)

	msg := email.Message{To: "alice@example.com", Subject: "New message", HTML: html, Tag: "message"}
	require.NoError(t, s.SendEmail(context.Background(), msg))
	require.NoError(t, s.SendEmail(context.Background(), msg))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	var jsonFile, htmlFile string
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".json":
			jsonFile = filepath.Join(dir, e.Name())
		case ".html":
			htmlFile = filepath.Join(dir, e.Name())
		}
	}

	raw, err := os.ReadFile(jsonFile)
	require.NoError(t, err)
	var meta map[string]string
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "alice@example.com", meta["to"])
	assert.Equal(t, "message", meta["tag"])

	body, err := os.ReadFile(htmlFile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "&lt;bob&gt;"))
	assert.Contains(t, string(body), `href="https://pulse.local/c/1"`)

	assert.ErrorIs(t, s.SendEmail(context.Background(), email.Message{}), email.ErrInvalidParams)
}
