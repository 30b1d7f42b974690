package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pulse/pkg/auth"
)

const secret = "test-secret-with-enough-entropy-0123456789"

func verifier(t *testing.T) *auth.JWT {
	t.Helper()
	v, err := auth.NewJWT(auth.Config{SigningKey: secret, Issuer: "accounts", Leeway: time.Second})
	require.NoError(t, err)
	return v
}

func TestJWT_RoundTrip(t *testing.T) {
	t.Parallel()

	v := verifier(t)
	token, err := v.Issue("alice", time.Minute)
	require.NoError(t, err)

	userID, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestJWT_Rejects(t *testing.T) {
	t.Parallel()

	v := verifier(t)
	sign := func(claims jwt.Claims, key string, method jwt.SigningMethod) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
		require.NoError(t, err)
		return s
	}
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty", token: "", wantErr: auth.ErrMissingToken},
		{name: "garbage", token: "not.a.token", wantErr: auth.ErrUnauthenticated},
		{
			name: "expired",
			token: sign(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject: "alice", Issuer: "accounts",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			}}, secret, jwt.SigningMethodHS256),
			wantErr: auth.ErrExpiredToken,
		},
		{
			name: "wrong key",
			token: sign(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject: "alice", Issuer: "accounts", ExpiresAt: future,
			}}, "another-secret", jwt.SigningMethodHS256),
			wantErr: auth.ErrUnauthenticated,
		},
		{
			name: "wrong issuer",
			token: sign(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject: "alice", Issuer: "someone", ExpiresAt: future,
			}}, secret, jwt.SigningMethodHS256),
			wantErr: auth.ErrUnauthenticated,
		},
		{
			name: "other algorithm",
			token: sign(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject: "alice", Issuer: "accounts", ExpiresAt: future,
			}}, secret, jwt.SigningMethodHS512),
			wantErr: auth.ErrUnauthenticated,
		},
		{
			name: "no subject",
			token: sign(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
				Issuer: "accounts", ExpiresAt: future,
			}}, secret, jwt.SigningMethodHS256),
			wantErr: auth.ErrMissingSubject,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Verify(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, auth.ErrUnauthenticated)
		})
	}
}

func TestJWT_UserIDClaimWins(t *testing.T) {
	t.Parallel()

	v := verifier(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "account-42",
			Issuer:    "accounts",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	userID, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestNewJWT_MissingKey(t *testing.T) {
	t.Parallel()

	_, err := auth.NewJWT(auth.Config{})
	assert.ErrorIs(t, err, auth.ErrMissingSigningKey)
	assert.Panics(t, func() { auth.MustNewJWT(auth.Config{}) })
}

func TestDefaultExtractor(t *testing.T) {
	t.Parallel()

	extract := auth.DefaultExtractor("")

	r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	assert.Equal(t, "from-query", extract(r))

	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", extract(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, extract(r))
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	v := verifier(t)
	token, err := v.Issue("alice", time.Minute)
	require.NoError(t, err)

	var seen string
	h := auth.Middleware(v, auth.Bearer, func(w http.ResponseWriter, _ *http.Request, _ error) {
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.UserID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", seen)
}
