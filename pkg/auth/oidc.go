package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCProvider verifies bearer tokens against an OpenID Connect issuer.
// Identity comes from the verified ID token; the user profile (including
// role) is materialized from a local directory, since the issuer knows
// nothing about application roles.
type OIDCProvider struct {
	verifier  *oidc.IDTokenVerifier
	directory UserDirectory
}

// OIDCConfig holds the issuer settings for token verification
type OIDCConfig struct {
	IssuerURL string
	ClientID  string
}

// NewOIDCProvider discovers the issuer and builds a verifying provider
func NewOIDCProvider(ctx context.Context, config OIDCConfig, directory UserDirectory) (*OIDCProvider, error) {
	if config.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}
	if directory == nil {
		return nil, fmt.Errorf("user directory is required")
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: config.ClientID})

	return &OIDCProvider{
		verifier:  verifier,
		directory: directory,
	}, nil
}

// SessionFromToken verifies the token with the issuer and maps it to a
// Session value
func (p *OIDCProvider) SessionFromToken(ctx context.Context, token string) (*Session, error) {
	idToken, err := p.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims struct {
		SessionID string `json:"sid"`
	}
	// sid is optional; fall back to the subject when the issuer omits it
	_ = idToken.Claims(&claims)
	if claims.SessionID == "" {
		claims.SessionID = idToken.Subject
	}

	return &Session{
		ID:        claims.SessionID,
		UserID:    idToken.Subject,
		Token:     token,
		IssuedAt:  idToken.IssuedAt,
		ExpiresAt: idToken.Expiry,
	}, nil
}

// UserByID materializes the user from the local directory
func (p *OIDCProvider) UserByID(ctx context.Context, id string) (*User, error) {
	return p.directory.UserByID(ctx, id)
}
