package registry

import "errors"

var (
	ErrNilConnection = errors.New("registry: nil connection")
	ErrEmptyIdentity = errors.New("registry: connection has no identity")
	ErrDuplicateConn = errors.New("registry: connection already registered")
)
