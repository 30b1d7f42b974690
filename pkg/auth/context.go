package auth

import (
	"context"
	"net/http"
)

type contextKey struct{ name string }

var userIDKey = &contextKey{name: "auth_user_id"}

// WithUserID stores the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user id, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// Authenticate resolves the caller of r.
func Authenticate(r *http.Request, v Verifier, extract Extractor) (string, error) {
	return v.Verify(r.Context(), extract(r))
}

// Middleware rejects requests without a valid token and stores the user id
// in the request context. onError writes the rejection.
func Middleware(v Verifier, extract Extractor, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := Authenticate(r, v, extract)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
