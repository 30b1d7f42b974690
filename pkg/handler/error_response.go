package handler

import "net/http"

type errorResponse struct {
	err error
}

func (e errorResponse) Render(http.ResponseWriter, *http.Request) error {
	return e.err
}

// Error defers err to the wrapped handler's ErrorHandler, which logs it and
// renders the envelope. Prefer it over JSONError when the failure should be
// logged.
func Error(err error) Response {
	return errorResponse{err: err}
}
