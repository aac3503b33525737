package auth

import "time"

// Role is the sole authorization input for access-control decisions
type Role string

const (
	RoleAdmin     Role = "admin"     // Full access, including user deletion
	RoleModerator Role = "moderator" // Elevated access to user management
	RoleUser      Role = "user"      // Default role for new accounts
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// Session represents an active session issued by the auth provider.
// The pipeline holds it as an immutable value for the request's lifetime.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"-"` // Opaque credential, never exposed
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session has expired as of now
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// User is the resolved account behind a session
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Role          Role   `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

// AuthContext combines the session and user resolved for one request.
// It is constructed once by the Resolver and never mutated afterwards.
type AuthContext struct {
	Session *Session
	User    *User
}
