package rbac

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/userdeck/pkg/apperr"
	"github.com/platinummonkey/userdeck/pkg/auth"
)

// RoleSet is a named, immutable set of roles attached to a procedure at
// registration time. Sets are always declared explicitly per procedure;
// nothing is ever inferred from a role hierarchy.
type RoleSet []auth.Role

// Standard role sets. Admin is not implicitly a moderator: a
// moderator-gated procedure that should admit admins must say so.
var (
	AdminOnly        = RoleSet{auth.RoleAdmin}
	AdminOrModerator = RoleSet{auth.RoleAdmin, auth.RoleModerator}
)

// Contains reports whether role is a member of the set
func (s RoleSet) Contains(role auth.Role) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

// String joins the set for client-facing forbidden messages
func (s RoleSet) String() string {
	names := make([]string, len(s))
	for i, r := range s {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

type requirementKind int

const (
	kindPublic requirementKind = iota
	kindAuthenticated
	kindRoleIn
)

// Requirement is the authorization demand attached to a procedure.
// It is fixed at registration and immutable afterwards.
type Requirement struct {
	kind  requirementKind
	roles RoleSet
}

// Public passes for any caller, authenticated or not
func Public() Requirement {
	return Requirement{kind: kindPublic}
}

// Authenticated requires a resolved AuthContext
func Authenticated() Requirement {
	return Requirement{kind: kindAuthenticated}
}

// RoleIn requires a resolved AuthContext whose role is in the given set
func RoleIn(roles ...auth.Role) Requirement {
	return Requirement{kind: kindRoleIn, roles: RoleSet(roles)}
}

// RoleInSet requires membership in a pre-declared role set
func RoleInSet(set RoleSet) Requirement {
	return Requirement{kind: kindRoleIn, roles: set}
}

// Roles returns the role set for RoleIn requirements, nil otherwise
func (r Requirement) Roles() RoleSet {
	return r.roles
}

// Authorize evaluates whether the resolved context satisfies the
// requirement. authCtx may be nil for unauthenticated callers.
func Authorize(authCtx *auth.AuthContext, req Requirement) error {
	switch req.kind {
	case kindPublic:
		return nil
	case kindAuthenticated:
		if authCtx == nil || authCtx.User == nil {
			return apperr.Unauthenticated("Authentication required")
		}
		return nil
	case kindRoleIn:
		if authCtx == nil || authCtx.User == nil {
			return apperr.Unauthenticated("Authentication required")
		}
		if !req.roles.Contains(authCtx.User.Role) {
			return apperr.Forbidden(fmt.Sprintf("Access denied. Required roles: %s", req.roles))
		}
		return nil
	default:
		return apperr.Forbidden("")
	}
}
