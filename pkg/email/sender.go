package email

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Sender delivers a single message.
type Sender interface {
	SendEmail(ctx context.Context, msg Message) error
}

// Message is one outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
	Tag     string `json:"tag,omitempty"`
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidAddress reports whether addr looks like a deliverable address.
func ValidAddress(addr string) bool {
	return emailRegex.MatchString(addr)
}

// Validate checks that the message can be handed to a provider.
func (m Message) Validate() error {
	switch {
	case !ValidAddress(m.To):
		return fmt.Errorf("%w: recipient %q is not a valid address", ErrInvalidParams, m.To)
	case strings.TrimSpace(m.Subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidParams)
	case strings.TrimSpace(m.HTML) == "" && strings.TrimSpace(m.Text) == "":
		return fmt.Errorf("%w: body is required", ErrInvalidParams)
	}
	return nil
}

// New returns the sender selected by cfg.
func New(cfg Config) (Sender, error) {
	if cfg.UsesPostmark() {
		return NewPostmark(cfg)
	}
	if cfg.DevDir == "" {
		return nil, fmt.Errorf("%w: EMAIL_DEV_DIR is required without postmark tokens", ErrInvalidConfig)
	}
	return NewFileSender(cfg.DevDir), nil
}
