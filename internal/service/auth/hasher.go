package auth

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/vidtube/internal/apperrors"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

// Used when caller does not provide own hasher
var DefaultHasher PasswordHasher = BcryptHasher{}

// Bcrypt password hasher
// Password is pre hashed with sha256, so bcrypt 72 bytes limit does not cut long passwords
type BcryptHasher struct {
	// Bcrypt cost. bcrypt.DefaultCost if zero
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is empty", apperrors.ErrValidation)
	}

	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], cost)
	return string(hash), err
}

func (h BcryptHasher) Compare(hashedPassword string, password string) error {
	sum := sha256.Sum256([]byte(password))
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), sum[:])
}

// VerifyPassword reports whether password matches the hash
// Any failure, including malformed hash, means not verified
func VerifyPassword(h PasswordHasher, hashedPassword string, password string) bool {
	if h == nil || hashedPassword == "" || password == "" {
		return false
	}
	return h.Compare(hashedPassword, password) == nil
}
