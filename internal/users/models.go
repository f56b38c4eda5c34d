package users

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/ariefcatur/astro-motors/internal/apperr"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID             string
	Name           string
	Email          string
	PasswordHash   string
	Role           Role
	Verified       bool
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// NormalizeEmail trims and lower-cases an address and checks its shape.
func NormalizeEmail(s string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(s))
	if e == "" {
		return "", fmt.Errorf("%w: email is required", apperr.ErrValidation)
	}
	if _, err := mail.ParseAddress(e); err != nil {
		return "", fmt.Errorf("%w: invalid email %q", apperr.ErrValidation, s)
	}
	return e, nil
}
