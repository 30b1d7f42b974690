// Package templates holds the templ components used for email bodies.
package templates

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// NotificationData feeds the notification email layout.
type NotificationData struct {
	Title     string
	Message   string
	ActionURL string
	Action    string
	Footer    string
}

// Notification renders a single notification as a minimal HTML email.
func Notification(d NotificationData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html><body style="font-family:sans-serif;margin:0;padding:24px;">`)
		b.WriteString(`<h1 style="font-size:20px;">`)
		b.WriteString(templ.EscapeString(d.Title))
		b.WriteString(`</h1><p style="font-size:15px;line-height:1.5;">`)
		b.WriteString(templ.EscapeString(d.Message))
		b.WriteString(`</p>`)
		if d.ActionURL != "" {
			label := d.Action
			if label == "" {
				label = "Open"
			}
			b.WriteString(`<p><a href="`)
			b.WriteString(templ.EscapeString(string(templ.URL(d.ActionURL))))
			b.WriteString(`">`)
			b.WriteString(templ.EscapeString(label))
			b.WriteString(`</a></p>`)
		}
		if d.Footer != "" {
			b.WriteString(`<p style="color:#888;font-size:12px;">`)
			b.WriteString(templ.EscapeString(d.Footer))
			b.WriteString(`</p>`)
		}
		b.WriteString(`</body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// Render renders a component to a string.
func Render(ctx context.Context, c templ.Component) (string, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}
