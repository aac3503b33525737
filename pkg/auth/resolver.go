package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/userdeck/pkg/apperr"
	"github.com/platinummonkey/userdeck/pkg/contextkeys"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 30 * time.Second
)

// Resolver turns a request's credential into an AuthContext. Two carriers
// are supported: an ambient session already attached to the request context
// (cookie flow) and an Authorization: Bearer header (stateless flow). Both
// produce the same AuthContext shape so downstream stages are
// carrier-agnostic.
type Resolver struct {
	provider Provider
	cache    *expirable.LRU[string, *AuthContext]
	now      func() time.Time
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithClock injects a clock for expiry checks
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithCache sizes the token resolution cache; ttl bounds staleness after
// a session is revoked at the provider
func WithCache(size int, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cache = expirable.NewLRU[string, *AuthContext](size, nil, ttl)
	}
}

// NewResolver creates a resolver backed by the given provider
func NewResolver(provider Provider, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		provider: provider,
		cache:    expirable.NewLRU[string, *AuthContext](defaultCacheSize, nil, defaultCacheTTL),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve builds the AuthContext for req. It fails with an unauthenticated
// error when the credential is missing (wrapping ErrNoCredential), malformed,
// expired, or when the provider cannot materialize the session's user.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*AuthContext, error) {
	if session, ok := ctx.Value(contextkeys.SessionKey).(*Session); ok && session != nil {
		return r.fromSession(ctx, session)
	}

	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return nil, apperr.Unauthenticated("Authentication required").Wrap(ErrNoCredential)
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return nil, apperr.Unauthenticated("Bearer token required")
	}
	token := parts[1]

	if cached, ok := r.cache.Get(token); ok {
		if !cached.Session.Expired(r.now()) {
			return cached, nil
		}
		r.cache.Remove(token)
	}

	session, err := r.provider.SessionFromToken(ctx, token)
	if err != nil || session == nil {
		return nil, apperr.Unauthenticated("Invalid or expired token").Wrap(err)
	}

	authCtx, err := r.fromSession(ctx, session)
	if err != nil {
		return nil, err
	}

	r.cache.Add(token, authCtx)
	return authCtx, nil
}

func (r *Resolver) fromSession(ctx context.Context, session *Session) (*AuthContext, error) {
	if session.Expired(r.now()) {
		return nil, apperr.Unauthenticated("Invalid or expired token")
	}

	user, err := r.provider.UserByID(ctx, session.UserID)
	if err != nil || user == nil {
		return nil, apperr.Unauthenticated("User not found").Wrap(err)
	}

	role := user.Role
	if !role.Valid() {
		role = RoleUser
	}

	return &AuthContext{
		Session: session,
		User: &User{
			ID:            user.ID,
			Email:         user.Email,
			Name:          user.Name,
			Role:          role,
			EmailVerified: user.EmailVerified,
		},
	}, nil
}
