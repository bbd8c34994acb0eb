package identity

import (
	"context"
	"strings"

	"github.com/feelwell/feelwell/internal/platform/apperr"
	"github.com/feelwell/feelwell/internal/platform/auth"
)

type Service struct {
	users       UserRepository
	tokens      *auth.TokenIssuer
	revocations *auth.TokenRevocationStore
}

func NewService(users UserRepository, tokens *auth.TokenIssuer, revocations *auth.TokenRevocationStore) *Service {
	return &Service{users: users, tokens: tokens, revocations: revocations}
}

// Register creates a user account. Admin accounts can only be created by an
// authenticated admin.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	name := DisplayName(in.Name)
	email := NormalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return nil, apperr.Validation("name, email and password are required")
	}
	if !strings.Contains(email, "@") {
		return nil, apperr.Validation("invalid email")
	}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = RolePatient
	}
	if !validRoles[role] {
		return nil, apperr.Validation("invalid role: %s", in.Role)
	}
	if role == RoleAdmin && !auth.HasRole(ctx, RoleAdmin) {
		return nil, apperr.Forbidden("admin accounts can only be created by an admin")
	}

	u := &User{Name: name, Email: email, Role: role}
	if role == RoleDoctor {
		u.Specialization = strings.TrimSpace(in.Specialization)
		if u.Specialization == "" {
			return nil, apperr.Validation("specialization is required for doctors")
		}
		if in.Experience < 0 {
			return nil, apperr.Validation("experience must not be negative")
		}
		u.Experience = in.Experience
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies the credentials and issues a session token. Unknown emails
// and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.AuthFailure("invalid email or password")
		}
		return nil, err
	}
	ok, err := auth.CheckPassword(u.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.AuthFailure("invalid email or password")
	}

	token, claims, err := s.tokens.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: u}, nil
}

// Logout revokes the session token until it would have expired.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return apperr.AuthFailure("invalid token")
	}
	if s.revocations != nil && claims.ID != "" {
		s.revocations.Revoke(claims.ID, claims.Subject, claims.ExpiresAt.Time)
	}
	return nil
}

// ListDoctors returns every doctor with a normalized "Dr." display name.
func (s *Service) ListDoctors(ctx context.Context) ([]*User, error) {
	doctors, err := s.users.ListByRole(ctx, RoleDoctor)
	if err != nil {
		return nil, err
	}
	for _, d := range doctors {
		d.Name = DoctorDisplayName(d.Name)
	}
	return doctors, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, apperr.Validation("user id is required")
	}
	return s.users.GetByID(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	return s.users.GetByEmail(ctx, email)
}
