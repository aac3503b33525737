// Package procedure composes business functions with authorization
// requirements.
//
// # Overview
//
// A Procedure wraps a HandlerFunc with one of the rbac requirements:
//
//	procedure.Public("users.getById", handler)
//	procedure.Authenticated("users.update", handler)
//	procedure.Admin("users.delete", handler)
//	procedure.RoleRestricted("reports.run", rbac.RoleSet{...}, handler)
//
// Composition is static: the requirement is decided at registration and
// never per request. Invoke runs the authorizer first and only calls the
// business function on success, so handlers never see an unauthorized
// context.
//
// AllowSelf declares a per-procedure ownership override (profile update by
// its owner) that is consulted only after a forbidden role decision.
package procedure
