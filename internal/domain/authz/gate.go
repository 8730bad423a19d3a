package authz

import (
	"context"
	"fmt"

	"github.com/okian/talentsync/pkg/logger"
	"github.com/okian/talentsync/pkg/metrics"
)

// Authenticator resolves a bearer token into a Principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Principal, error)
}

// Gate is the single authorization entry point for privileged operations.
// It has no side effects beyond logging and metrics.
type Gate struct {
	authn  Authenticator
	policy Policy
	log    logger.Logger
}

// NewGate builds a gate from an authenticator and a policy.
func NewGate(authn Authenticator, policy Policy, opts ...GateOption) *Gate {
	g := &Gate{
		authn:  authn,
		policy: policy,
		log:    logger.Get().Named("authz"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize authenticates token and checks action for the resulting principal.
func (g *Gate) Authorize(ctx context.Context, token string, action Action) (Principal, error) {
	if g.authn == nil {
		return Principal{}, fmt.Errorf("%w: no authenticator configured", ErrUnauthorized)
	}
	p, err := g.authn.Authenticate(ctx, token)
	if err != nil {
		metrics.RecordAuthzDecision(string(action), "unauthenticated")
		g.log.Debug(ctx, "bearer token rejected", logger.String("action", string(action)), logger.Error(err))
		return Principal{}, err
	}
	if err := g.Check(ctx, p, action); err != nil {
		return p, err
	}
	return p, nil
}

// Check evaluates the policy for an already authenticated principal.
func (g *Gate) Check(ctx context.Context, p Principal, action Action) error {
	if g.policy == nil {
		return fmt.Errorf("%w: no policy configured", ErrPermissionCheckFailed)
	}
	d := g.policy.Evaluate(ctx, p, action)
	metrics.RecordAuthzDecision(string(action), d.Effect.String())

	switch d.Effect {
	case Allow:
		return nil
	case Error:
		g.log.Error(ctx, "permission check failed",
			logger.String("user_id", p.UserID),
			logger.String("action", string(action)),
			logger.Error(d.Err))
		return fmt.Errorf("%w: %w", ErrPermissionCheckFailed, d.Err)
	default:
		g.log.Info(ctx, "permission denied",
			logger.String("user_id", p.UserID),
			logger.String("action", string(action)),
			logger.String("reason", d.Reason))
		return fmt.Errorf("%w: %s", ErrPermissionDenied, d.Reason)
	}
}
