package security

import (
	"strings"
	"unicode"

	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
)

const (
	minPasswordLength = 12
	maxPasswordLength = 128
)

// PasswordIdentity carries the account fields a password must not contain.
type PasswordIdentity struct {
	Email     string
	FirstName string
	LastName  string
}

// ValidatePassword enforces the account password policy: 12-128 chars, no
// surrounding whitespace, at least 3 of 4 character classes, and no
// identity substrings.
func ValidatePassword(password string, identity PasswordIdentity) error {
	if len(password) < minPasswordLength {
		return policyError("password must be at least 12 characters")
	}
	if len(password) > maxPasswordLength {
		return policyError("password must be at most 128 characters")
	}
	if strings.TrimSpace(password) != password {
		return policyError("password cannot start or end with spaces")
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	score := 0
	for _, ok := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if ok {
			score++
		}
	}
	if score < 3 {
		return policyError("password must contain at least 3 of: lowercase, uppercase, digits, symbols")
	}

	lowered := strings.ToLower(password)

	local := strings.ToLower(strings.SplitN(identity.Email, "@", 2)[0])
	if local != "" && strings.Contains(lowered, local) {
		return policyError("password cannot contain your email address")
	}

	first := strings.ToLower(identity.FirstName)
	if len(first) >= 3 && strings.Contains(lowered, first) {
		return policyError("password cannot contain your first name")
	}

	last := strings.ToLower(identity.LastName)
	if len(last) >= 3 && strings.Contains(lowered, last) {
		return policyError("password cannot contain your last name")
	}

	return nil
}

// NormalizeEmail canonicalizes an address for lookups and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func policyError(message string) error {
	return appErrors.Clone(appErrors.ErrValidation, message)
}
