package auth

import (
	"fmt"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

func HashPassword(pw string) (string, error) {
	if len(pw) < minPasswordLen {
		return "", fmt.Errorf("%w: password must have at least %d characters", apperr.ErrValidation, minPasswordLen)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether pw matches hash in constant time.
func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
