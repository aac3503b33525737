package procedure

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/platinummonkey/userdeck/pkg/apperr"
	"github.com/platinummonkey/userdeck/pkg/auth"
	"github.com/platinummonkey/userdeck/pkg/rbac"
)

func authCtx(userID string, role auth.Role) *auth.AuthContext {
	return &auth.AuthContext{
		Session: &auth.Session{ID: "sess-" + userID, UserID: userID},
		User:    &auth.User{ID: userID, Email: userID + "@example.com", Role: role},
	}
}

func okHandler(called *bool) HandlerFunc {
	return func(ctx context.Context, call *Call) (interface{}, error) {
		*called = true
		return "ok", nil
	}
}

func TestInvoke_Public(t *testing.T) {
	var called bool
	p := Public("users.getById", okHandler(&called))

	out, err := p.Invoke(context.Background(), &Call{Auth: nil})
	if err != nil {
		t.Fatalf("Invoke() err = %v, want nil", err)
	}
	if out != "ok" || !called {
		t.Errorf("handler not reached: out = %v, called = %v", out, called)
	}
}

func TestInvoke_AuthenticatedRejectsAnonymous(t *testing.T) {
	var called bool
	p := Authenticated("users.create", okHandler(&called))

	_, err := p.Invoke(context.Background(), &Call{Auth: nil})
	if !apperr.IsCode(err, apperr.CodeUnauthenticated) {
		t.Fatalf("Invoke() err = %v, want unauthenticated", err)
	}
	if called {
		t.Error("handler ran for an anonymous caller")
	}
}

func TestInvoke_AdminOnly(t *testing.T) {
	tests := []struct {
		name     string
		role     auth.Role
		wantCode apperr.Code
	}{
		{"admin admitted", auth.RoleAdmin, ""},
		{"moderator forbidden", auth.RoleModerator, apperr.CodeForbidden},
		{"user forbidden", auth.RoleUser, apperr.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			p := Admin("users.delete", okHandler(&called))
			_, err := p.Invoke(context.Background(), &Call{Auth: authCtx("u-1", tt.role)})
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Invoke() err = %v, want nil", err)
				}
				if !called {
					t.Error("handler not called")
				}
				return
			}
			if !apperr.IsCode(err, tt.wantCode) {
				t.Errorf("Invoke() err = %v, want code %s", err, tt.wantCode)
			}
			if called {
				t.Error("handler ran despite authorization failure")
			}
		})
	}
}

func TestInvoke_SelfOverride(t *testing.T) {
	ownerOf := func(authCtx *auth.AuthContext, input json.RawMessage) bool {
		var in struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return false
		}
		return in.ID == authCtx.User.ID
	}

	newProc := func(called *bool) *Procedure {
		return RoleRestricted("users.update", rbac.AdminOrModerator, okHandler(called)).AllowSelf(ownerOf)
	}

	t.Run("owner admitted despite role", func(t *testing.T) {
		var called bool
		_, err := newProc(&called).Invoke(context.Background(), &Call{
			Auth:  authCtx("u-1", auth.RoleUser),
			Input: json.RawMessage(`{"id":"u-1","name":"New Name"}`),
		})
		if err != nil {
			t.Fatalf("Invoke() err = %v, want nil for owner", err)
		}
		if !called {
			t.Error("handler not called")
		}
	})

	t.Run("non-owner stays forbidden", func(t *testing.T) {
		var called bool
		_, err := newProc(&called).Invoke(context.Background(), &Call{
			Auth:  authCtx("u-1", auth.RoleUser),
			Input: json.RawMessage(`{"id":"u-2","name":"New Name"}`),
		})
		if !apperr.IsCode(err, apperr.CodeForbidden) {
			t.Fatalf("Invoke() err = %v, want forbidden", err)
		}
		if called {
			t.Error("handler ran for a non-owner")
		}
	})

	t.Run("privileged role skips the ownership check", func(t *testing.T) {
		var called bool
		_, err := newProc(&called).Invoke(context.Background(), &Call{
			Auth:  authCtx("u-9", auth.RoleAdmin),
			Input: json.RawMessage(`{"id":"u-1"}`),
		})
		if err != nil {
			t.Fatalf("Invoke() err = %v, want nil for admin", err)
		}
		if !called {
			t.Error("handler not called")
		}
	})

	t.Run("anonymous caller is not rescued", func(t *testing.T) {
		var called bool
		_, err := newProc(&called).Invoke(context.Background(), &Call{
			Auth:  nil,
			Input: json.RawMessage(`{"id":"u-1"}`),
		})
		if !apperr.IsCode(err, apperr.CodeUnauthenticated) {
			t.Fatalf("Invoke() err = %v, want unauthenticated", err)
		}
		if called {
			t.Error("handler ran for an anonymous caller")
		}
	})

	t.Run("malformed input fails closed", func(t *testing.T) {
		var called bool
		_, err := newProc(&called).Invoke(context.Background(), &Call{
			Auth:  authCtx("u-1", auth.RoleUser),
			Input: json.RawMessage(`{`),
		})
		if !apperr.IsCode(err, apperr.CodeForbidden) {
			t.Fatalf("Invoke() err = %v, want forbidden", err)
		}
		if called {
			t.Error("handler ran on malformed input")
		}
	})
}
