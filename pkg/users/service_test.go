package users

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/userdeck/pkg/apperr"
	"github.com/platinummonkey/userdeck/pkg/auth"
	"github.com/platinummonkey/userdeck/pkg/observability"
)

// fakeStore is an in-memory Store for service tests
type fakeStore struct {
	byID map[string]*User
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[string]*User)}
}

func (f *fakeStore) Create(ctx context.Context, user *User) error {
	for _, u := range f.byID {
		if u.Email == user.Email {
			return ErrDuplicateEmail
		}
	}
	cp := *user
	f.byID[user.ID] = &cp
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	var matched []User
	for _, u := range f.byID {
		if filter.Search != "" && !strings.Contains(u.Name, filter.Search) && !strings.Contains(u.Email, filter.Search) {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		matched = append(matched, *u)
	}
	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (f *fakeStore) Update(ctx context.Context, user *User) error {
	if _, ok := f.byID[user.ID]; !ok {
		return ErrNotFound
	}
	cp := *user
	f.byID[user.ID] = &cp
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func newTestService(store Store) *Service {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewService(store, logger, WithClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}))
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())

	user, err := svc.Create(ctx, CreateInput{Email: "Alice@Example.com", Name: "  Alice  "})
	if err != nil {
		t.Fatalf("Create() err = %v", err)
	}
	if user.ID == "" {
		t.Error("missing generated ID")
	}
	if user.Email != "alice@example.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}
	if user.Name != "Alice" {
		t.Errorf("name not trimmed: %q", user.Name)
	}
	if user.Role != auth.RoleUser {
		t.Errorf("default role = %q, want user", user.Role)
	}
	if !user.Active {
		t.Error("new user should be active")
	}
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"missing email", CreateInput{Name: "Alice"}},
		{"bad email", CreateInput{Email: "not-an-email", Name: "Alice"}},
		{"short name", CreateInput{Email: "a@example.com", Name: "A"}},
		{"long name", CreateInput{Email: "a@example.com", Name: strings.Repeat("a", 101)}},
		{"bad role", CreateInput{Email: "a@example.com", Name: "Alice", Role: "superuser"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.in); !apperr.IsCode(err, apperr.CodeValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())

	if _, err := svc.Create(ctx, CreateInput{Email: "a@example.com", Name: "Alice"}); err != nil {
		t.Fatalf("first Create() err = %v", err)
	}
	// Case differences do not dodge the uniqueness check.
	_, err := svc.Create(ctx, CreateInput{Email: "A@Example.COM", Name: "Imposter"})
	if !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())

	created, _ := svc.Create(ctx, CreateInput{Email: "a@example.com", Name: "Alice"})

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() err = %v", err)
	}
	if got.Email != "a@example.com" {
		t.Errorf("got = %+v", got)
	}

	if _, err := svc.Get(ctx, "missing-id"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestList_Pagination(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	for i := 0; i < 25; i++ {
		email := strings.Repeat("x", i+1) + "@example.com"
		if _, err := svc.Create(ctx, CreateInput{Email: email, Name: "User Name"}); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	result, err := svc.List(ctx, ListInput{Page: 2, PerPage: 10})
	if err != nil {
		t.Fatalf("List() err = %v", err)
	}
	p := result.Pagination
	if p.Total != 25 || p.TotalPages != 3 {
		t.Errorf("pagination = %+v", p)
	}
	if !p.HasNext || !p.HasPrev {
		t.Errorf("page 2 of 3 should have next and prev: %+v", p)
	}
	if len(result.Users) != 10 {
		t.Errorf("len(users) = %d, want 10", len(result.Users))
	}

	last, err := svc.List(ctx, ListInput{Page: 3, PerPage: 10})
	if err != nil {
		t.Fatalf("List() err = %v", err)
	}
	if len(last.Users) != 5 || last.Pagination.HasNext {
		t.Errorf("last page: users = %d, pagination = %+v", len(last.Users), last.Pagination)
	}
}

func TestList_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())

	if _, err := svc.List(ctx, ListInput{Page: -1}); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Errorf("negative page: err = %v", err)
	}
	if _, err := svc.List(ctx, ListInput{PerPage: 500}); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Errorf("oversized per_page: err = %v", err)
	}

	// Zero values take defaults.
	result, err := svc.List(ctx, ListInput{})
	if err != nil {
		t.Fatalf("List() err = %v", err)
	}
	if result.Pagination.Page != 1 || result.Pagination.PerPage != 20 {
		t.Errorf("defaults not applied: %+v", result.Pagination)
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())

	created, _ := svc.Create(ctx, CreateInput{Email: "a@example.com", Name: "Alice"})

	newName := "Alice Cooper"
	newEmail := "alice.cooper@example.com"
	updated, err := svc.Update(ctx, UpdateInput{ID: created.ID, Name: &newName, Email: &newEmail})
	if err != nil {
		t.Fatalf("Update() err = %v", err)
	}
	if updated.Name != newName || updated.Email != newEmail {
		t.Errorf("updated = %+v", updated)
	}
	if updated.EmailVerified {
		t.Error("changed email must reset verification")
	}

	if _, err := svc.Update(ctx, UpdateInput{ID: "missing", Name: &newName}); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("missing user: err = %v", err)
	}
}

func TestUpdate_EmailConflict(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())

	_, _ = svc.Create(ctx, CreateInput{Email: "a@example.com", Name: "Alice"})
	bob, _ := svc.Create(ctx, CreateInput{Email: "b@example.com", Name: "Bobby"})

	taken := "a@example.com"
	if _, err := svc.Update(ctx, UpdateInput{ID: bob.ID, Email: &taken}); !apperr.IsCode(err, apperr.CodeConflict) {
		t.Errorf("err = %v, want conflict", err)
	}

	// Re-submitting your own address is not a conflict.
	same := "b@example.com"
	if _, err := svc.Update(ctx, UpdateInput{ID: bob.ID, Email: &same}); err != nil {
		t.Errorf("own email: err = %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())

	created, _ := svc.Create(ctx, CreateInput{Email: "a@example.com", Name: "Alice"})

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() err = %v", err)
	}
	if err := svc.Delete(ctx, created.ID); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("second delete: err = %v, want not found", err)
	}
}
