package typing

import "errors"

var (
	ErrNotInRoom   = errors.New("typing: connection has not joined the conversation")
	ErrRateLimited = errors.New("typing: too many typing signals")
)
