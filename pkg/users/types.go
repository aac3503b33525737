package users

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/userdeck/pkg/auth"
)

// User is a managed account
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          auth.Role `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateInput is the payload for creating a user
type CreateInput struct {
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  auth.Role `json:"role,omitempty"`
}

// UpdateInput is the payload for updating a user. Nil fields are left
// unchanged.
type UpdateInput struct {
	ID    string     `json:"id"`
	Email *string    `json:"email,omitempty"`
	Name  *string    `json:"name,omitempty"`
	Role  *auth.Role `json:"role,omitempty"`
}

// ListInput selects a page of users
type ListInput struct {
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
	Search  string    `json:"search,omitempty"`
	Role    auth.Role `json:"role,omitempty"`
}

// Pagination describes the page a list call returned
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// ListResult is a page of users plus its pagination envelope
type ListResult struct {
	Users      []User     `json:"users"`
	Pagination Pagination `json:"pagination"`
}

// Store errors. The service layer translates these into client-facing
// error codes; stores never import apperr.
var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already in use")
)

// ListFilter is the storage-level selection for List
type ListFilter struct {
	Offset int
	Limit  int
	Search string
	Role   auth.Role
}

// Store persists users
type Store interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
}
