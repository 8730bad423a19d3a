package authz

import (
	"time"

	"github.com/okian/talentsync/pkg/logger"
)

// PolicyOption configures a RolePolicy.
type PolicyOption func(*RolePolicy)

// WithGrant replaces the qualifying roles for an action.
func WithGrant(action Action, roles ...Role) PolicyOption {
	return func(p *RolePolicy) {
		p.grants[action] = append([]Role(nil), roles...)
	}
}

// WithServiceRoles sets the roles held by service principals.
func WithServiceRoles(roles ...Role) PolicyOption {
	return func(p *RolePolicy) {
		p.serviceRoles = append([]Role(nil), roles...)
	}
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the gate logger.
func WithLogger(l logger.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// JWTOption configures a JWTAuthenticator.
type JWTOption func(*JWTAuthenticator)

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) JWTOption {
	return func(a *JWTAuthenticator) { a.issuer = issuer }
}

// WithAudience requires aud to contain audience.
func WithAudience(audience string) JWTOption {
	return func(a *JWTAuthenticator) { a.audience = audience }
}

// WithLeeway tolerates clock skew on exp and nbf.
func WithLeeway(d time.Duration) JWTOption {
	return func(a *JWTAuthenticator) {
		if d >= 0 {
			a.leeway = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) JWTOption {
	return func(a *JWTAuthenticator) {
		if now != nil {
			a.now = now
		}
	}
}
