package auth

import (
	"context"
	"errors"
)

// ErrNoCredential marks a request that carried no credential at all, as
// opposed to one that carried an invalid credential. Composed procedures
// use it to let public endpoints proceed without an AuthContext.
var ErrNoCredential = errors.New("no credential presented")

// Provider is the external auth collaborator. It owns credential storage
// and session issuance; the pipeline only consumes these two lookups.
type Provider interface {
	// SessionFromToken verifies an opaque token and returns the active
	// session it belongs to, or an error if the token is invalid, expired,
	// or unknown.
	SessionFromToken(ctx context.Context, token string) (*Session, error)

	// UserByID materializes the user a session references
	UserByID(ctx context.Context, id string) (*User, error)
}

// UserDirectory is the user-lookup half of Provider, for collaborators
// that verify tokens themselves but store profiles elsewhere
type UserDirectory interface {
	UserByID(ctx context.Context, id string) (*User, error)
}
