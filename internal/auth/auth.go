// Package auth implements the account credential format: a 64-byte blob
// holding SHA256(SHA256(password) XOR salt) followed by the 32-byte salt.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

// Size is the length of a credential blob: 32-byte hash + 32-byte salt.
const Size = 64

// Generate derives a fresh credential blob for password using a random salt.
func Generate(password string) ([]byte, error) {
	salt := make([]byte, sha256.Size)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	auth := make([]byte, Size)
	copy(auth[:sha256.Size], hash(password, salt))
	copy(auth[sha256.Size:], salt)
	return auth, nil
}

// Test reports whether password matches the credential blob. Blobs of the
// wrong length or with an all-zero hash never match; an all-zero hash is
// the "no password set" marker.
func Test(password string, auth []byte) bool {
	if len(auth) != Size {
		return false
	}
	stored := auth[:sha256.Size]
	salt := auth[sha256.Size:]

	zero := make([]byte, sha256.Size)
	if subtle.ConstantTimeCompare(stored, zero) == 1 {
		return false
	}
	return subtle.ConstantTimeCompare(stored, hash(password, salt)) == 1
}

func hash(password string, salt []byte) []byte {
	inner := sha256.Sum256([]byte(password))
	for i := range inner {
		inner[i] ^= salt[i]
	}
	outer := sha256.Sum256(inner[:])
	return outer[:]
}
