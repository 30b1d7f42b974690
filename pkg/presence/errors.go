package presence

import "errors"

var ErrStopped = errors.New("presence: broadcaster is stopped")
