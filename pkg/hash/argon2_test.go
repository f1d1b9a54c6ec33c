package hash

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

var fastConfig = Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestHashAndVerify(t *testing.T) {
	encoded, err := HashPasswordWithConfig("correct horse", fastConfig)
	if err != nil {
		t.Fatalf("HashPasswordWithConfig: %v", err)
	}

	ok, err := VerifyPassword("correct horse", encoded)
	if err != nil || !ok {
		t.Fatalf("VerifyPassword(correct) = %v, %v", ok, err)
	}
	ok, err = VerifyPassword("wrong horse", encoded)
	if err != nil || ok {
		t.Fatalf("VerifyPassword(wrong) = %v, %v", ok, err)
	}

	again, _ := HashPasswordWithConfig("correct horse", fastConfig)
	if again == encoded {
		t.Error("hashes must be salted")
	}
}

func TestVerifyPassword_LegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("old-express-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := VerifyPassword("old-express-pass", string(legacy))
	if err != nil || !ok {
		t.Fatalf("VerifyPassword(bcrypt) = %v, %v", ok, err)
	}
	ok, err = VerifyPassword("nope", string(legacy))
	if err != nil || ok {
		t.Fatalf("VerifyPassword(bcrypt, wrong) = %v, %v", ok, err)
	}
	if !NeedsRehash(string(legacy)) {
		t.Error("bcrypt hashes should be upgraded")
	}
}

func TestNeedsRehash(t *testing.T) {
	weak, _ := HashPasswordWithConfig("pw", fastConfig)
	if !NeedsRehash(weak) {
		t.Error("hash with non-default parameters should be upgraded")
	}
	if !NeedsRehash("garbage") {
		t.Error("undecodable hash should be upgraded")
	}
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	if _, err := VerifyPassword("pw", "$argon2id$broken"); err == nil {
		t.Error("expected ErrInvalidHash")
	}
}
