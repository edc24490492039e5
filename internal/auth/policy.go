package auth

import (
	"errors"
	"unicode"
	"unicode/utf8"
)

// MinPasswordLength is the minimum number of characters in a password.
const MinPasswordLength = 7

// WeakPasswordMessage is the user-facing explanation of the policy.
const WeakPasswordMessage = "Password must be at least 7 characters, contain a symbol, and a capital letter."

// ErrWeakPassword is returned by CheckStrength.
var ErrWeakPassword = errors.New("auth: password does not meet the strength policy")

// CheckStrength enforces the password policy used at registration and reset:
// at least MinPasswordLength characters, at least one character that is not
// an ASCII letter or digit, and at least one uppercase letter.
func CheckStrength(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrWeakPassword
	}

	var hasSymbol, hasUpper bool
	for _, r := range password {
		if !isASCIIAlnum(r) {
			hasSymbol = true
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	if !hasSymbol || !hasUpper {
		return ErrWeakPassword
	}
	return nil
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
