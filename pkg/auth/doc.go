// Package auth resolves request credentials into an immutable AuthContext.
//
// # Overview
//
// The auth collaborator is consumed only through the Provider interface:
// a token-to-session verification and a user lookup. Resolver supports two
// credential carriers — an ambient session on the request context (cookie
// flow) and an Authorization: Bearer header (stateless flow) — and produces
// the same AuthContext shape for both, so downstream authorization never
// cares which carrier was used.
//
// A missing credential resolves to an unauthenticated error wrapping
// ErrNoCredential; procedure composition uses that distinction to let
// public endpoints run without an AuthContext while still rejecting
// invalid credentials outright.
//
// # Providers
//
// OIDCProvider verifies bearer tokens against an OpenID Connect issuer and
// materializes profiles from a local UserDirectory. The postgres users
// store also implements Provider directly for deployments where sessions
// live in the application database.
package auth
