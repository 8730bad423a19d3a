package testsupport

import (
	"context"
	"testing"

	"github.com/okian/talentsync/internal/domain/authz"
)

// StaticAuthenticator maps fixed bearer tokens to principals.
type StaticAuthenticator map[string]authz.Principal

// Authenticate implements authz.Authenticator.
func (s StaticAuthenticator) Authenticate(_ context.Context, token string) (authz.Principal, error) {
	p, ok := s[token]
	if !ok {
		return authz.Principal{}, authz.ErrUnauthorized
	}
	return p, nil
}

// Tokens used across service and API tests. Each maps to a user with the
// role of the same name; TokenNobody maps to a user with no role.
const (
	TokenAdmin  = "token-admin"
	TokenEditor = "token-editor"
	TokenViewer = "token-viewer"
	TokenNobody = "token-nobody"
)

// Authenticator returns the standard test tokens. Call GrantStandardRoles
// on the store the policy reads from.
func Authenticator() StaticAuthenticator {
	return StaticAuthenticator{
		TokenAdmin:  {UserID: "user-admin", Email: "admin@example.com"},
		TokenEditor: {UserID: "user-editor", Email: "editor@example.com"},
		TokenViewer: {UserID: "user-viewer", Email: "viewer@example.com"},
		TokenNobody: {UserID: "user-nobody", Email: "nobody@example.com"},
	}
}

// GrantStandardRoles assigns the roles behind the standard test tokens.
func GrantStandardRoles(t testing.TB, store interface {
	GrantRole(ctx context.Context, userID string, role authz.Role) error
}) {
	t.Helper()
	for user, role := range map[string]authz.Role{
		"user-admin":  authz.RoleAdmin,
		"user-editor": authz.RoleEditor,
		"user-viewer": authz.RoleViewer,
	} {
		if err := store.GrantRole(context.Background(), user, role); err != nil {
			t.Fatalf("GrantRole(%s): %v", user, err)
		}
	}
}
