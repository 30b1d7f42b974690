package conn

import "errors"

var (
	ErrQueueFull = errors.New("conn: outbound queue is full")
	ErrClosed    = errors.New("conn: connection is closed")
)
