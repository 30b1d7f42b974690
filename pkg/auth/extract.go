package auth

import (
	"net/http"
	"strings"
)

// Extractor pulls a raw token from a request.
type Extractor func(r *http.Request) string

// Bearer reads "Authorization: Bearer <token>".
func Bearer(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Query reads the token from a query parameter.
func Query(param string) Extractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(param)
	}
}

// FirstOf returns the first non-empty token.
func FirstOf(extractors ...Extractor) Extractor {
	return func(r *http.Request) string {
		for _, fn := range extractors {
			if token := fn(r); token != "" {
				return token
			}
		}
		return ""
	}
}

// DefaultExtractor checks the bearer header, then the query parameter.
func DefaultExtractor(param string) Extractor {
	if param == "" {
		param = "token"
	}
	return FirstOf(Bearer, Query(param))
}
