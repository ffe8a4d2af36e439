package auth

import (
	"encoding/base64"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	password := "Ward7-shift-change!"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash = %q, want $argon2id$ PHC string", hash)
	}

	ok, err := VerifyPassword(password, hash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("the hashed password should verify")
	}

	ok, err = VerifyPassword("Ward7-shift-change?", hash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if ok {
		t.Error("a near-miss password must not verify")
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	hash1, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	hash2, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash1 == hash2 {
		t.Error("two hashes of one password should carry different salts")
	}
}

func TestHashPassword_EncodesTunedParameters(t *testing.T) {
	hash, err := HashPassword("anything")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("PHC string should have 6 $-delimited parts, got %d: %q", len(parts), hash)
	}
	if parts[2] != "v=19" {
		t.Errorf("version = %q, want v=19", parts[2])
	}
	if parts[3] != "m=19456,t=2,p=1" {
		t.Errorf("parameters = %q, want m=19456,t=2,p=1", parts[3])
	}
}

// Credentials hashed before a parameter retune must keep verifying:
// the cost parameters are read from the stored hash.
func TestVerifyPassword_LegacyParameters(t *testing.T) {
	password := "Ward7-shift-change!"
	salt := []byte("0123456789abcdef")

	// A hash produced under the old m=65536,t=3,p=1 tuning.
	legacy := argon2.IDKey([]byte(password), salt, 3, 64*1024, 1, 32)
	encoded := "$argon2id$v=19$m=65536,t=3,p=1$" +
		base64.RawStdEncoding.EncodeToString(salt) + "$" +
		base64.RawStdEncoding.EncodeToString(legacy)

	ok, err := VerifyPassword(password, encoded)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("a legacy-parameter hash should still verify")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not PHC", "plaintext"},
		{"wrong algorithm", "$bcrypt$v=19$m=19456,t=2,p=1$salt$hash"},
		{"too few parts", "$argon2id$v=19$m=19456,t=2,p=1"},
		{"bad salt encoding", "$argon2id$v=19$m=19456,t=2,p=1$!!!$hash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := VerifyPassword("password", tt.hash); err == nil {
				t.Error("VerifyPassword() should reject a malformed hash")
			}
		})
	}
}
