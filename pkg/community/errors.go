package community

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("community: not found")
	ErrIdentityNotFound     = fmt.Errorf("%w: identity", ErrNotFound)
	ErrConversationNotFound = fmt.Errorf("%w: conversation", ErrNotFound)
	ErrMessageNotFound      = fmt.Errorf("%w: message", ErrNotFound)
)
