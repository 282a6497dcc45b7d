package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 14
	MinPasswordLen = 8
	MaxPasswordLen = 128

	// SpecialCharacters is the symbol set a strong password must draw from.
	SpecialCharacters = `!@#$%^&*(),.?":{}|<>`
)

// PasswordPolicy holds the tunable strength requirements.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

// DefaultPasswordPolicy returns the standard policy.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: MinPasswordLen, MaxLength: MaxPasswordLen}
}

// PasswordStrength is the outcome of a strength check. Errors lists every
// unmet requirement, not just the first.
type PasswordStrength struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

var commonPasswords = map[string]bool{
	"password":    true,
	"123456":      true,
	"123456789":   true,
	"12345678":    true,
	"qwerty":      true,
	"abc123":      true,
	"password123": true,
	"admin":       true,
	"letmein":     true,
	"welcome":     true,
	"monkey":      true,
	"dragon":      true,
	"passw0rd":    true,
	"trustno1":    true,
}

func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, BcryptCost)
}

// HashPasswordWithCost is HashPassword with an explicit bcrypt cost.
func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// ComparePassword verifies password against a bcrypt hash in constant time.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePasswordStrength runs every requirement independently and reports
// all violations together.
func ValidatePasswordStrength(password string, policy PasswordPolicy) PasswordStrength {
	errs := make([]string, 0)

	length := len([]rune(password))
	if length < policy.MinLength {
		errs = append(errs, fmt.Sprintf("Password must be at least %d characters long.", policy.MinLength))
	}
	if policy.MaxLength > 0 && length > policy.MaxLength {
		errs = append(errs, fmt.Sprintf("Password must be at most %d characters long.", policy.MaxLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(SpecialCharacters, r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		errs = append(errs, "Password must contain at least one uppercase letter.")
	}
	if !hasLower {
		errs = append(errs, "Password must contain at least one lowercase letter.")
	}
	if !hasDigit {
		errs = append(errs, "Password must contain at least one digit.")
	}
	if !hasSpecial {
		errs = append(errs, "Password must contain at least one special character.")
	}
	if commonPasswords[strings.ToLower(password)] {
		errs = append(errs, "Password is too common. Please choose a more secure password.")
	}

	return PasswordStrength{Valid: len(errs) == 0, Errors: errs}
}
