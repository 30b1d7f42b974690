package gateway

import "errors"

var (
	ErrShuttingDown = errors.New("gateway: shutting down")
	ErrRateLimited  = errors.New("gateway: too many inbound events")
)
