// Package authz decides whether a caller may run a talent directory action.
package authz

import (
	"context"
	"fmt"
	"strings"
)

// Role is a staff role stored in the user_roles table.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Action names an operation guarded by the gate.
type Action string

const (
	ActionTalentSync Action = "talent.sync"
	ActionTalentRead Action = "talent.read"
)

// Principal is an authenticated caller.
type Principal struct {
	UserID string
	Email  string
	// Service marks an in-process caller such as the scheduler. Its roles
	// come from configuration instead of the role table.
	Service bool
}

// ServicePrincipal names an in-process caller.
func ServicePrincipal(name string) Principal {
	return Principal{UserID: "service:" + name, Service: true}
}

// Effect is the outcome kind of a Decision.
type Effect int

const (
	Deny Effect = iota
	Allow
	Error
)

func (e Effect) String() string {
	switch e {
	case Allow:
		return "allow"
	case Error:
		return "error"
	default:
		return "deny"
	}
}

// Decision is the typed result of a policy evaluation.
type Decision struct {
	Effect Effect
	Reason string
	Err    error
}

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool { return d.Effect == Allow }

// Policy evaluates whether a principal may perform an action.
type Policy interface {
	Evaluate(ctx context.Context, p Principal, action Action) Decision
}

// RoleLookup returns the roles assigned to a user.
type RoleLookup interface {
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
}

// DefaultGrants maps actions to the roles that qualify for them.
func DefaultGrants() map[Action][]Role {
	return map[Action][]Role{
		ActionTalentSync: {RoleAdmin, RoleEditor},
		ActionTalentRead: {RoleAdmin, RoleEditor, RoleViewer},
	}
}

// RolePolicy grants an action when the principal holds any qualifying role.
type RolePolicy struct {
	lookup       RoleLookup
	grants       map[Action][]Role
	serviceRoles []Role
}

// NewRolePolicy builds a policy backed by lookup.
func NewRolePolicy(lookup RoleLookup, opts ...PolicyOption) *RolePolicy {
	p := &RolePolicy{
		lookup: lookup,
		grants: DefaultGrants(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate implements Policy.
func (p *RolePolicy) Evaluate(ctx context.Context, principal Principal, action Action) Decision {
	qualifying, ok := p.grants[action]
	if !ok || len(qualifying) == 0 {
		return Decision{Effect: Deny, Reason: fmt.Sprintf("no role grants %s", action)}
	}

	var roles []Role
	if principal.Service {
		roles = p.serviceRoles
	} else {
		if strings.TrimSpace(principal.UserID) == "" {
			return Decision{Effect: Deny, Reason: "anonymous principal"}
		}
		if p.lookup == nil {
			return Decision{Effect: Error, Err: fmt.Errorf("no role lookup configured")}
		}
		var err error
		roles, err = p.lookup.RolesForUser(ctx, principal.UserID)
		if err != nil {
			return Decision{Effect: Error, Err: err}
		}
	}

	for _, have := range roles {
		for _, want := range qualifying {
			if Role(strings.ToLower(string(have))) == want {
				return Decision{Effect: Allow, Reason: string(want)}
			}
		}
	}
	return Decision{Effect: Deny, Reason: fmt.Sprintf("%s requires one of %v", action, qualifying)}
}
