package identity

import (
	"regexp"
	"strings"
	"time"

	"github.com/feelwell/feelwell/internal/platform/auth"
)

const (
	RolePatient = auth.RolePatient
	RoleDoctor  = auth.RoleDoctor
	RoleAdmin   = auth.RoleAdmin
)

var validRoles = map[string]bool{
	RolePatient: true, RoleDoctor: true, RoleAdmin: true,
}

// User is a registered patient, doctor or administrator.
type User struct {
	ID             string    `json:"_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Role           string    `json:"role"`
	Specialization string    `json:"specialization,omitempty"`
	Experience     int       `json:"experience,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (u *User) IsDoctor() bool { return u.Role == RoleDoctor }

// RegisterInput is the registration request.
type RegisterInput struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Role           string `json:"role"`
	Specialization string `json:"specialization"`
	Experience     int    `json:"experience"`
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	drPrefix   = regexp.MustCompile(`(?i)^(dr\.\s*|dr\s+)+`)
	whitespace = regexp.MustCompile(`\s+`)
)

// DisplayName trims and collapses whitespace and reduces any run of "Dr."
// prefixes to a single "Dr. ".
func DisplayName(raw string) string {
	name := whitespace.ReplaceAllString(strings.TrimSpace(raw), " ")
	if loc := drPrefix.FindStringIndex(name); loc != nil {
		rest := strings.TrimSpace(name[loc[1]:])
		if rest == "" {
			return name
		}
		return "Dr. " + rest
	}
	return name
}

// DoctorDisplayName returns name with exactly one "Dr." prefix.
func DoctorDisplayName(name string) string {
	name = DisplayName(name)
	if name == "" || strings.HasPrefix(name, "Dr. ") {
		return name
	}
	return "Dr. " + name
}
