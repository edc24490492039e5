package auth

import (
	"errors"
	"strings"
	"testing"
)

// newTestPasswordService uses bcrypt's minimum cost so each hash takes
// milliseconds instead of a quarter second.
func newTestPasswordService() *PasswordService {
	return NewPasswordServiceForTest(4)
}

// =========================================================================
// Hash TESTS
// =========================================================================

func TestHash_OutputLooksBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("Abc123!")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash)
	}
	if strings.Contains(hash, "Abc123!") {
		t.Error("Hash() output contains the plaintext")
	}
}

func TestHash_SamePasswordProducesDifferentHashes(t *testing.T) {
	ps := newTestPasswordService()

	hash1, _ := ps.Hash("Same-Password1")
	hash2, _ := ps.Hash("Same-Password1")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password (salt must be random)")
	}
}

func TestHash_LengthLimit(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", 72)); err != nil {
		t.Fatalf("Hash() should accept a 72-byte password, got error: %v", err)
	}

	_, err := ps.Hash(strings.Repeat("a", 73))
	if !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("Hash() error = %v, want ErrPasswordTooLong", err)
	}
}

// =========================================================================
// Verify TESTS
// =========================================================================

func TestVerify(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("Correct-Horse1")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		wantErr  error
		wantOK   bool
	}{
		{name: "correct password", hash: hash, password: "Correct-Horse1", wantOK: true},
		{name: "wrong password", hash: hash, password: "correct-horse1", wantErr: ErrPasswordMismatch},
		{name: "empty password", hash: hash, password: "", wantErr: ErrPasswordMismatch},
		{name: "garbage hash", hash: "not-a-bcrypt-hash", password: "Correct-Horse1", wantErr: ErrUnusableHash},
		{name: "plaintext stored", hash: "Correct-Horse1", password: "Correct-Horse1", wantErr: ErrUnusableHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.Verify(tt.hash, tt.password)
			if tt.wantOK {
				if err != nil {
					t.Fatalf("Verify() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Verify() should return an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHashVerify_RoundTrip(t *testing.T) {
	ps := newTestPasswordService()

	for _, password := range []string{"Abc123!", "p@$$W0rd!#%", "Пароль-密码", "  Lead and trail!  "} {
		t.Run(password, func(t *testing.T) {
			hash, err := ps.Hash(password)
			if err != nil {
				t.Fatalf("Hash(%q) error = %v", password, err)
			}
			if err := ps.Verify(hash, password); err != nil {
				t.Errorf("Verify() failed for %q: %v", password, err)
			}
		})
	}
}
