package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	emailMaxLen = 254
	localMaxLen = 64

	passwordMinLen = 8
	passwordMaxLen = 50
)

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with the stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// ValidatePassword enforces the registration policy: at least 8 and fewer
// than 50 characters, at least one digit, at least one special character.
func ValidatePassword(password string) error {
	if len(password) < passwordMinLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, passwordMinLen)
	}
	if len(password) >= passwordMaxLen {
		return fmt.Errorf("%w: password must be less than %d characters", ErrInvalidInput, passwordMaxLen)
	}
	if !strings.ContainsAny(password, "0123456789") {
		return fmt.Errorf("%w: password must include at least one number", ErrInvalidInput)
	}
	if !strings.ContainsAny(password, `!@#$%^&*()-_=+[]{};:'",.<>/?\|`+"`~") {
		return fmt.Errorf("%w: password must include at least one special character", ErrInvalidInput)
	}
	return nil
}

// NormalizeEmail lowercases, trims, and validates an email address.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if len(email) > emailMaxLen {
		return "", fmt.Errorf("%w: email too long", ErrInvalidInput)
	}
	at := strings.Count(email, "@")
	if at != 1 {
		return "", fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	parts := strings.SplitN(email, "@", 2)
	local, domain := parts[0], parts[1]
	if local == "" || len(local) > localMaxLen {
		return "", fmt.Errorf("%w: invalid email length", ErrInvalidInput)
	}
	if domain == "" || !strings.Contains(domain, ".") {
		return "", fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" || len(label) > 63 {
			return "", fmt.Errorf("%w: invalid domain label length", ErrInvalidInput)
		}
	}
	return email, nil
}
