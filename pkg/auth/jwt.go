package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier resolves a raw credential to a user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Claims is the token payload. UserID wins over the subject when both are set.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

func (c Claims) identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// JWT verifies HS256 tokens.
type JWT struct {
	key    []byte
	cfg    Config
	parser *jwt.Parser
}

var _ Verifier = (*JWT)(nil)

func NewJWT(cfg Config) (*JWT, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingSigningKey
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &JWT{key: []byte(cfg.SigningKey), cfg: cfg, parser: jwt.NewParser(opts...)}, nil
}

// MustNewJWT panics on a missing key. Use during startup wiring only.
func MustNewJWT(cfg Config) *JWT {
	v, err := NewJWT(cfg)
	if err != nil {
		panic(err)
	}
	return v
}

func (v *JWT) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", errors.Join(ErrUnauthenticated, ErrMissingToken)
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", errors.Join(ErrUnauthenticated, ErrExpiredToken)
	case err != nil:
		return "", errors.Join(ErrUnauthenticated, err)
	}

	userID := claims.identity()
	if userID == "" {
		return "", errors.Join(ErrUnauthenticated, ErrMissingSubject)
	}
	return userID, nil
}

// Issue signs a token for userID valid for ttl. The account service owns
// issuance in production; this serves tooling and tests.
func (v *JWT) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", ErrMissingSubject
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{v.cfg.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
