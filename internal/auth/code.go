package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// codeBytes random bytes hex-encode to a 6 character code.
const codeBytes = 3

// CodeLength is the length of every verification code and reset token.
const CodeLength = codeBytes * 2

// NewCode returns a fresh lowercase hex code read from crypto/rand.
// Verification codes and reset tokens share this format.
func NewCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating code: %w", err)
	}
	return hex.EncodeToString(b), nil
}
