package apperrors

import (
	"errors"
)

// Kind groups sentinel errors the way the HTTP boundary maps them to responses
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindConflict   Kind = "conflict_error"
	KindAuth       Kind = "auth_error"
	KindDependency Kind = "dependency_error"
	KindUnknown    Kind = "unknown_error"
)

var (
	// ValidationError
	ErrValidation = errors.New("validation failed")

	// ConflictError
	ErrAccountAlreadyExists = errors.New("account already exists")

	// AuthError
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenMissing          = errors.New("token missing")
	ErrTokenReused           = errors.New("token used or revoked")
	ErrAccountNotFound       = errors.New("account not found")
	ErrWrongPassword         = errors.New("wrong password")

	// DependencyError
	ErrStoreUnavailable     = errors.New("credential store unavailable")
	ErrBlobStoreUnavailable = errors.New("blob store unavailable")
)

var authErrors = []error{
	ErrTokenExpired,
	ErrTokenInvalidSignature,
	ErrTokenMalformed,
	ErrTokenMissing,
	ErrTokenReused,
	ErrAccountNotFound,
	ErrWrongPassword,
}

// IsAuthError reports whether err wraps any of authentication sentinels
func IsAuthError(err error) bool {
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// KindOf classifies error into one of taxonomy kinds
// Errors that wraps none of known sentinels are KindUnknown
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrAccountAlreadyExists):
		return KindConflict
	case IsAuthError(err):
		return KindAuth
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrBlobStoreUnavailable):
		return KindDependency
	default:
		return KindUnknown
	}
}
