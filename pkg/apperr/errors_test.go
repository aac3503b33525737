package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructors_StatusAndCode(t *testing.T) {
	tests := []struct {
		name       string
		err        *Error
		wantCode   Code
		wantStatus int
	}{
		{"validation", Validation("bad input"), CodeValidation, http.StatusBadRequest},
		{"unauthenticated", Unauthenticated(""), CodeUnauthenticated, http.StatusUnauthorized},
		{"forbidden", Forbidden(""), CodeForbidden, http.StatusForbidden},
		{"not found", NotFound("User"), CodeNotFound, http.StatusNotFound},
		{"conflict", Conflict("duplicate"), CodeConflict, http.StatusConflict},
		{"payload too large", PayloadTooLarge(""), CodePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{"rate limited", RateLimited(""), CodeRateLimited, http.StatusTooManyRequests},
		{"internal", Internal(errors.New("boom")), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.wantStatus)
			}
		})
	}
}

func TestNotFound_Message(t *testing.T) {
	err := NotFound("User")
	if err.Message != "User not found" {
		t.Errorf("Message = %q, want %q", err.Message, "User not found")
	}
}

func TestInternal_HidesCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Internal(cause)

	if err.Message != "Internal server error" {
		t.Errorf("client message = %q, want generic message", err.Message)
	}
	if !errors.Is(err, cause) {
		t.Error("Internal should wrap the cause for logging")
	}
}

func TestCoerce(t *testing.T) {
	typed := Conflict("duplicate email")
	if got := Coerce(typed); got != typed {
		t.Errorf("Coerce should return typed errors unchanged, got %v", got)
	}

	wrapped := fmt.Errorf("service: %w", typed)
	if got := Coerce(wrapped); got.Code != CodeConflict {
		t.Errorf("Coerce(wrapped) code = %q, want %q", got.Code, CodeConflict)
	}

	untyped := Coerce(errors.New("something broke"))
	if untyped.Code != CodeInternal || untyped.Status != http.StatusInternalServerError {
		t.Errorf("Coerce(untyped) = %v, want internal 500", untyped)
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", RateLimited(""))
	if !IsCode(err, CodeRateLimited) {
		t.Error("IsCode should see through wrapping")
	}
	if IsCode(err, CodeConflict) {
		t.Error("IsCode should not match a different code")
	}
	if IsCode(errors.New("plain"), CodeInternal) {
		t.Error("IsCode on untyped error should be false")
	}
}
