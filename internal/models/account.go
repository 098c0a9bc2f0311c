package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is the credential record of a single user
// RefreshToken is empty when account has no active session
type Account struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	Email          string
	FullName       string
	HashedPassword string
	AvatarURL      string
	CoverImageURL  string

	RefreshToken          string
	RefreshTokenExpiresAt time.Time // zero if no refresh token stored
}
