package auth_test

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/relabel/relabel/internal/auth"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := auth.HashSecret("123456", "pepper-a")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("hash = %q, want argon2id encoding", hash)
	}

	ok, scheme := auth.VerifySecret(hash, "123456", "pepper-a")
	if !ok || scheme != auth.SchemeCurrent {
		t.Errorf("verify = %v/%v, want true/current", ok, scheme)
	}
	if ok, _ := auth.VerifySecret(hash, "654321", "pepper-a"); ok {
		t.Error("wrong secret verified")
	}
	if ok, _ := auth.VerifySecret(hash, "123456", "pepper-b"); ok {
		t.Error("wrong pepper verified")
	}
}

func TestHashesAreSalted(t *testing.T) {
	a, err := auth.HashSecret("123456", "p")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := auth.HashSecret("123456", "p")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a == b {
		t.Error("two hashes of the same secret are identical")
	}
}

func TestLegacyBcryptVerifies(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("123456"+"pep"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	ok, scheme := auth.VerifySecret(string(legacy), "123456", "pep")
	if !ok || scheme != auth.SchemeLegacy {
		t.Errorf("verify = %v/%v, want true/legacy", ok, scheme)
	}
	if ok, _ := auth.VerifySecret(string(legacy), "000000", "pep"); ok {
		t.Error("wrong secret verified against legacy hash")
	}
}

func TestDetectScheme(t *testing.T) {
	cases := []struct {
		hash string
		want auth.Scheme
	}{
		{"$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA", auth.SchemeCurrent},
		{"$2a$10$abcdefghijklmnopqrstuv", auth.SchemeLegacy},
		{"$2b$12$abcdefghijklmnopqrstuv", auth.SchemeLegacy},
		{"plaintext", auth.SchemeUnknown},
		{"", auth.SchemeUnknown},
	}
	for _, tc := range cases {
		if got := auth.DetectScheme(tc.hash); got != tc.want {
			t.Errorf("DetectScheme(%q) = %v, want %v", tc.hash, got, tc.want)
		}
	}
}

func TestValidCodeFormat(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"123456", true},
		{"000000", true},
		{"12345", false},
		{"1234567", false},
		{"12345a", false},
		{"12 456", false},
		{"", false},
		{"12345\n", false},
	}
	for _, tc := range cases {
		if got := auth.ValidCodeFormat(tc.code); got != tc.want {
			t.Errorf("ValidCodeFormat(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
