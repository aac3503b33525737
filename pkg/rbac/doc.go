// Package rbac evaluates role-based access requirements.
//
// # Overview
//
// A Requirement is one of Public, Authenticated, or RoleIn(set). Authorize
// checks a resolved AuthContext against it: Public always passes (the
// context may be absent), Authenticated fails unauthenticated on an absent
// context, RoleIn additionally fails forbidden when the caller's role is
// outside the declared set — and the forbidden message names the allowed
// roles.
//
// Role sets are explicit values (AdminOnly, AdminOrModerator, or ad hoc
// RoleIn arguments); there is no role hierarchy and no implicit widening.
// Ownership overrides (self-service endpoints) are declared per procedure
// in pkg/procedure, never inside the authorizer.
package rbac
