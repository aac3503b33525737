package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/userdeck/pkg/apperr"
	"github.com/platinummonkey/userdeck/pkg/auth"
	"github.com/platinummonkey/userdeck/pkg/observability"
)

// Service implements user CRUD on top of a Store, translating storage
// errors into client-facing codes
type Service struct {
	store   Store
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
	newID   func() string
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithClock injects the clock used for timestamps
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator injects the user ID generator
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) { s.newID = newID }
}

// WithMetrics enables operation counters
func WithMetrics(metrics *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = metrics }
}

// NewService creates a user service
func NewService(store Store, logger *observability.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) observe(operation, result string) {
	if s.metrics != nil {
		s.metrics.UserOperationsTotal.WithLabelValues(operation, result).Inc()
	}
}

// Create validates the input and stores a new user. Duplicate emails are
// rejected with a conflict whether caught by the pre-check or by the
// store's unique constraint.
func (s *Service) Create(ctx context.Context, in CreateInput) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateEmail(email); err != nil {
		s.observe("create", "invalid")
		return nil, err
	}
	if err := validateName(in.Name); err != nil {
		s.observe("create", "invalid")
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = auth.RoleUser
	}
	if err := validateRole(role); err != nil {
		s.observe("create", "invalid")
		return nil, err
	}

	if _, err := s.store.GetByEmail(ctx, email); err == nil {
		s.observe("create", "conflict")
		return nil, apperr.Conflict("Email already in use")
	} else if !errors.Is(err, ErrNotFound) {
		s.observe("create", "error")
		return nil, apperr.Internal(err)
	}

	now := s.now().UTC()
	user := &User{
		ID:        s.newID(),
		Email:     email,
		Name:      strings.TrimSpace(in.Name),
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			s.observe("create", "conflict")
			return nil, apperr.Conflict("Email already in use")
		}
		s.observe("create", "error")
		return nil, apperr.Internal(err)
	}

	s.observe("create", "ok")
	s.logger.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"role":    string(user.Role),
	}).Info("user created")
	return user, nil
}

// Get fetches a user by ID
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.observe("get", "not_found")
			return nil, apperr.NotFound("User")
		}
		s.observe("get", "error")
		return nil, apperr.Internal(err)
	}
	s.observe("get", "ok")
	return user, nil
}

// List returns a page of users with its pagination envelope
func (s *Service) List(ctx context.Context, in ListInput) (*ListResult, error) {
	in, err := normalizeList(in)
	if err != nil {
		s.observe("list", "invalid")
		return nil, err
	}

	items, total, err := s.store.List(ctx, ListFilter{
		Offset: (in.Page - 1) * in.PerPage,
		Limit:  in.PerPage,
		Search: strings.TrimSpace(in.Search),
		Role:   in.Role,
	})
	if err != nil {
		s.observe("list", "error")
		return nil, apperr.Internal(err)
	}

	totalPages := total / in.PerPage
	if total%in.PerPage != 0 {
		totalPages++
	}

	s.observe("list", "ok")
	return &ListResult{
		Users: items,
		Pagination: Pagination{
			Page:       in.Page,
			PerPage:    in.PerPage,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    in.Page < totalPages,
			HasPrev:    in.Page > 1 && total > 0,
		},
	}, nil
}

// Update applies the non-nil fields of in to an existing user
func (s *Service) Update(ctx context.Context, in UpdateInput) (*User, error) {
	if in.ID == "" {
		s.observe("update", "invalid")
		return nil, apperr.Validation("User ID is required")
	}

	user, err := s.store.GetByID(ctx, in.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.observe("update", "not_found")
			return nil, apperr.NotFound("User")
		}
		s.observe("update", "error")
		return nil, apperr.Internal(err)
	}

	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if err := validateEmail(email); err != nil {
			s.observe("update", "invalid")
			return nil, err
		}
		if email != user.Email {
			if existing, err := s.store.GetByEmail(ctx, email); err == nil && existing.ID != user.ID {
				s.observe("update", "conflict")
				return nil, apperr.Conflict("Email already in use")
			} else if err != nil && !errors.Is(err, ErrNotFound) {
				s.observe("update", "error")
				return nil, apperr.Internal(err)
			}
			// A changed address needs re-verification.
			user.EmailVerified = false
		}
		user.Email = email
	}
	if in.Name != nil {
		if err := validateName(*in.Name); err != nil {
			s.observe("update", "invalid")
			return nil, err
		}
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Role != nil {
		if err := validateRole(*in.Role); err != nil {
			s.observe("update", "invalid")
			return nil, err
		}
		user.Role = *in.Role
	}

	user.UpdatedAt = s.now().UTC()

	if err := s.store.Update(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			s.observe("update", "conflict")
			return nil, apperr.Conflict("Email already in use")
		}
		if errors.Is(err, ErrNotFound) {
			s.observe("update", "not_found")
			return nil, apperr.NotFound("User")
		}
		s.observe("update", "error")
		return nil, apperr.Internal(err)
	}

	s.observe("update", "ok")
	s.logger.WithField("user_id", user.ID).Info("user updated")
	return user, nil
}

// Delete removes a user by ID
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.observe("delete", "not_found")
			return apperr.NotFound("User")
		}
		s.observe("delete", "error")
		return apperr.Internal(err)
	}
	s.observe("delete", "ok")
	s.logger.WithField("user_id", id).Info("user deleted")
	return nil
}
