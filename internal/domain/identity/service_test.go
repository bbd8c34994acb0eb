package identity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/feelwell/feelwell/internal/platform/apperr"
	"github.com/feelwell/feelwell/internal/platform/auth"
)

// -- Mock Repository --

type mockUserRepo struct {
	mu    sync.Mutex
	store map[string]*User
	seq   int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{store: make(map[string]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.Email == u.Email {
			return apperr.Conflict("email already registered")
		}
	}
	m.seq++
	u.ID = fmt.Sprintf("user-%d", m.seq)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.store {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (m *mockUserRepo) ListByRole(_ context.Context, role string) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, u := range m.store {
		if u.Role == role {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var testKey = []byte("identity-test-signing-key-0123456789")

func newTestService() *Service {
	return NewService(newMockUserRepo(), auth.NewTokenIssuer(testKey, time.Hour), auth.NewTokenRevocationStore(time.Hour))
}

func adminContext() context.Context {
	return auth.WithIdentity(context.Background(), &auth.Claims{Role: RoleAdmin})
}

// -- Register --

func TestService_Register(t *testing.T) {
	svc := newTestService()
	u, err := svc.Register(context.Background(), RegisterInput{
		Name: "  Jane   Doe ", Email: "Jane@Example.COM", Password: "secret1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == "" {
		t.Error("expected ID to be set")
	}
	if u.Email != "jane@example.com" {
		t.Errorf("expected lowercased email, got %s", u.Email)
	}
	if u.Name != "Jane Doe" {
		t.Errorf("expected collapsed name, got %q", u.Name)
	}
	if u.Role != RolePatient {
		t.Errorf("expected default role patient, got %s", u.Role)
	}
	if u.PasswordHash == "" || u.PasswordHash == "secret1" {
		t.Error("expected password to be hashed")
	}
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	in := RegisterInput{Name: "A", Email: "a@example.com", Password: "pw"}
	if _, err := svc.Register(ctx, in); err != nil {
		t.Fatal(err)
	}
	in.Email = "A@EXAMPLE.com"
	_, err := svc.Register(ctx, in)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestService_Register_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"missing name", RegisterInput{Email: "a@b.c", Password: "pw"}},
		{"missing email", RegisterInput{Name: "A", Password: "pw"}},
		{"missing password", RegisterInput{Name: "A", Email: "a@b.c"}},
		{"bad email", RegisterInput{Name: "A", Email: "nope", Password: "pw"}},
		{"bad role", RegisterInput{Name: "A", Email: "a@b.c", Password: "pw", Role: "nurse"}},
		{"doctor without specialization", RegisterInput{Name: "A", Email: "a@b.c", Password: "pw", Role: "doctor"}},
		{"negative experience", RegisterInput{Name: "A", Email: "a@b.c", Password: "pw", Role: "doctor", Specialization: "GP", Experience: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService()
			_, err := svc.Register(context.Background(), tt.in)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_Register_Admin(t *testing.T) {
	svc := newTestService()
	in := RegisterInput{Name: "Root", Email: "root@example.com", Password: "pw", Role: "admin"}

	_, err := svc.Register(context.Background(), in)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for anonymous admin registration, got %v", err)
	}

	u, err := svc.Register(adminContext(), in)
	if err != nil {
		t.Fatalf("admin registration by admin: %v", err)
	}
	if u.Role != RoleAdmin {
		t.Errorf("expected admin role, got %s", u.Role)
	}
}

func TestService_Register_Doctor(t *testing.T) {
	svc := newTestService()
	u, err := svc.Register(context.Background(), RegisterInput{
		Name: "Dr. Dr. House", Email: "house@example.com", Password: "pw",
		Role: "Doctor", Specialization: " Diagnostics ", Experience: 12,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Name != "Dr. House" {
		t.Errorf("expected single prefix, got %q", u.Name)
	}
	if u.Specialization != "Diagnostics" || u.Experience != 12 {
		t.Errorf("unexpected doctor fields: %+v", u)
	}
}

// -- Login / Logout --

func TestService_Login(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	reg, err := svc.Register(ctx, RegisterInput{Name: "P", Email: "p@example.com", Password: "hunter2"})
	if err != nil {
		t.Fatal(err)
	}

	session, err := svc.Login(ctx, " P@example.com ", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.Token == "" {
		t.Fatal("expected token")
	}
	claims, err := svc.tokens.Parse(session.Token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != reg.ID || claims.Role != RolePatient {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if !session.ExpiresAt.After(time.Now()) {
		t.Error("expected expiry in the future")
	}
}

func TestService_Login_Failures(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterInput{Name: "P", Email: "p@example.com", Password: "hunter2"}); err != nil {
		t.Fatal(err)
	}

	_, errWrong := svc.Login(ctx, "p@example.com", "wrong")
	_, errUnknown := svc.Login(ctx, "nobody@example.com", "hunter2")
	for _, err := range []error{errWrong, errUnknown} {
		if !apperr.Is(err, apperr.KindAuthFailure) {
			t.Errorf("expected auth failure, got %v", err)
		}
	}
	if errWrong.Error() != errUnknown.Error() {
		t.Errorf("expected identical messages, got %q and %q", errWrong, errUnknown)
	}

	if _, err := svc.Login(ctx, "", ""); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_Logout(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterInput{Name: "P", Email: "p@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	session, err := svc.Login(ctx, "p@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Logout(ctx, session.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	claims, _ := svc.tokens.Parse(session.Token)
	if !svc.revocations.IsRevoked(claims.ID) {
		t.Error("expected token to be revoked")
	}

	if err := svc.Logout(ctx, "garbage"); !apperr.Is(err, apperr.KindAuthFailure) {
		t.Errorf("expected auth failure for bad token, got %v", err)
	}
}

// -- Lookups --

func TestService_ListDoctors(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	for i, name := range []string{"Zed", "dr. Amy", "Dr.Dr. Bob"} {
		_, err := svc.Register(ctx, RegisterInput{
			Name: name, Email: fmt.Sprintf("d%d@example.com", i), Password: "pw",
			Role: "doctor", Specialization: "GP",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Register(ctx, RegisterInput{Name: "Pat", Email: "pat@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	doctors, err := svc.ListDoctors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(doctors) != 3 {
		t.Fatalf("expected 3 doctors, got %d", len(doctors))
	}
	for _, d := range doctors {
		if !strings.HasPrefix(d.Name, "Dr. ") || strings.HasPrefix(d.Name, "Dr. Dr") {
			t.Errorf("expected exactly one Dr. prefix, got %q", d.Name)
		}
	}
}

func TestService_GetAndGetByEmail(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	u, err := svc.Register(ctx, RegisterInput{Name: "P", Email: "p@example.com", Password: "pw"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Get(ctx, u.ID)
	if err != nil || got.Email != u.Email {
		t.Fatalf("Get: %v %+v", err, got)
	}
	got, err = svc.GetByEmail(ctx, "P@EXAMPLE.COM")
	if err != nil || got.ID != u.ID {
		t.Fatalf("GetByEmail: %v %+v", err, got)
	}
	if _, err := svc.Get(ctx, "missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := svc.Get(ctx, ""); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
