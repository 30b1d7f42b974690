package auth

import "errors"

var (
	ErrUnauthenticated   = errors.New("auth: unauthenticated")
	ErrMissingToken      = errors.New("auth: missing token")
	ErrExpiredToken      = errors.New("auth: token is expired")
	ErrMissingSigningKey = errors.New("auth: missing signing key")
	ErrMissingSubject    = errors.New("auth: token has no subject")
)
