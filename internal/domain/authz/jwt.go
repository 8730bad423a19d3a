package authz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
)

// JWTAuthenticator verifies HS256 access tokens signed with a shared
// secret, the format issued by Supabase auth.
type JWTAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

type accessClaims struct {
	Email string `json:"email"`
}

// NewJWTAuthenticator returns an authenticator for tokens signed with secret.
func NewJWTAuthenticator(secret string, opts ...JWTOption) *JWTAuthenticator {
	a := &JWTAuthenticator{
		secret: []byte(secret),
		leeway: jwt.DefaultLeeway,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate implements Authenticator.
func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	if len(a.secret) == 0 {
		return Principal{}, fmt.Errorf("%w: token verification is not configured", ErrUnauthorized)
	}

	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: malformed token: %v", ErrUnauthorized, err)
	}
	if len(parsed.Headers) != 1 || parsed.Headers[0].Algorithm != string(jose.HS256) {
		return Principal{}, fmt.Errorf("%w: unexpected signing algorithm", ErrUnauthorized)
	}

	var std jwt.Claims
	var extra accessClaims
	if err := parsed.Claims(a.secret, &std, &extra); err != nil {
		return Principal{}, fmt.Errorf("%w: bad signature: %v", ErrUnauthorized, err)
	}
	if std.Expiry == nil {
		return Principal{}, fmt.Errorf("%w: token has no expiry", ErrUnauthorized)
	}

	expected := jwt.Expected{Issuer: a.issuer, Time: a.now()}
	if a.audience != "" {
		expected.Audience = jwt.Audience{a.audience}
	}
	if err := std.ValidateWithLeeway(expected, a.leeway); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if strings.TrimSpace(std.Subject) == "" {
		return Principal{}, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}

	return Principal{UserID: std.Subject, Email: extra.Email}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
