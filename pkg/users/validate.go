package users

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/platinummonkey/userdeck/pkg/apperr"
	"github.com/platinummonkey/userdeck/pkg/auth"
)

const (
	minNameLen = 2
	maxNameLen = 100

	defaultPerPage = 20
	maxPerPage     = 100
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func validateEmail(email string) error {
	if email == "" {
		return apperr.Validation("Email is required")
	}
	if !emailPattern.MatchString(email) {
		return apperr.Validation("Invalid email format")
	}
	return nil
}

func validateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < minNameLen {
		return apperr.Validation(fmt.Sprintf("Name must be at least %d characters", minNameLen))
	}
	if len(trimmed) > maxNameLen {
		return apperr.Validation(fmt.Sprintf("Name must be at most %d characters", maxNameLen))
	}
	return nil
}

func validateRole(role auth.Role) error {
	if !role.Valid() {
		return apperr.Validation(fmt.Sprintf("Invalid role: %s", role))
	}
	return nil
}

// normalizeList applies paging defaults and bounds
func normalizeList(in ListInput) (ListInput, error) {
	if in.Page == 0 {
		in.Page = 1
	}
	if in.Page < 1 {
		return in, apperr.Validation("Page must be at least 1")
	}
	if in.PerPage == 0 {
		in.PerPage = defaultPerPage
	}
	if in.PerPage < 1 || in.PerPage > maxPerPage {
		return in, apperr.Validation(fmt.Sprintf("Per page must be between 1 and %d", maxPerPage))
	}
	if in.Role != "" {
		if err := validateRole(in.Role); err != nil {
			return in, err
		}
	}
	return in, nil
}
