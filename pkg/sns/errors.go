package sns

import "errors"

var (
	ErrInvalidConfig      = errors.New("sns: invalid configuration")
	ErrFailedToLoadConfig = errors.New("sns: failed to load aws configuration")
	ErrInvalidAddress     = errors.New("sns: invalid address")
	ErrEndpointDisabled   = errors.New("sns: push endpoint is disabled")
	ErrThrottled          = errors.New("sns: request throttled")
	ErrPublishFailed      = errors.New("sns: publish failed")
)
