package tokenmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/models"
)

const defaultSigningMethod = "HS256"

// Claims are the verified payload of access or refresh token
type Claims struct {
	ID        string
	AccountID uuid.UUID
	Kind      models.TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// JWT representation of Claims
type tokenClaims struct {
	jwt.RegisteredClaims
	AccountID uuid.UUID        `json:"aid"`
	Kind      models.TokenKind `json:"knd"`
}

type CodecConfig struct {
	// Secrets to sign access and refresh tokens
	// Both are required and must differ, so one kind of token never passes as another
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Clock. If not set than time.Now is used
	Now func() time.Time
}

// Codec signs and verifies time bound tokens
// Verification is pure: only token, secret and clock are involved
type Codec struct {
	secrets map[models.TokenKind][]byte
	alg     jwt.SigningMethod
	now     func() time.Time
}

func NewCodec(cfg CodecConfig) (*Codec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("access and refresh secrets must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("signing method %q is not supported, use one of HS256, HS384, HS512", cfg.Alg)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Codec{
		secrets: map[models.TokenKind][]byte{
			models.TokenKindAccess:  []byte(cfg.AccessSecret),
			models.TokenKindRefresh: []byte(cfg.RefreshSecret),
		},
		alg: alg,
		now: cfg.Now,
	}, nil
}

// Issue signed token of the kind for account, valid for ttl
func (c *Codec) Issue(accountID uuid.UUID, kind models.TokenKind, ttl time.Duration) (models.IssuedToken, error) {
	var issued models.IssuedToken

	secret, ok := c.secrets[kind]
	if !ok {
		return issued, fmt.Errorf("unknown token kind %q", kind)
	}
	if ttl <= 0 {
		return issued, errors.New("token ttl must be positive")
	}

	now := c.now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(c.alg, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		AccountID: accountID,
		Kind:      kind,
	})

	value, err := token.SignedString(secret)
	if err != nil {
		return issued, fmt.Errorf("error while signing %s token. Err: %w", kind, err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

// Verify token of the kind and return its claims
// Errors are one of apperrors.ErrTokenExpired, ErrTokenInvalidSignature, ErrTokenMalformed
func (c *Codec) Verify(token string, kind models.TokenKind) (Claims, error) {
	secret, ok := c.secrets[kind]
	if !ok {
		return Claims{}, fmt.Errorf("unknown token kind %q", kind)
	}

	tc := &tokenClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		tc,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{c.alg.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return Claims{}, mapParseError(err)
	}

	switch {
	case tc.Kind != kind:
		return Claims{}, fmt.Errorf("%w: expected %s token", apperrors.ErrTokenMalformed, kind)
	case tc.AccountID == uuid.Nil:
		return Claims{}, fmt.Errorf("%w: account id is empty", apperrors.ErrTokenMalformed)
	case tc.IssuedAt == nil:
		return Claims{}, fmt.Errorf("%w: issued at is empty", apperrors.ErrTokenMalformed)
	}

	return Claims{
		ID:        tc.ID,
		AccountID: tc.AccountID,
		Kind:      tc.Kind,
		IssuedAt:  tc.IssuedAt.Time,
		ExpiresAt: tc.ExpiresAt.Time,
	}, nil
}

// Signature is checked before claims, so tampered expired token is reported as invalid signature
// Parser error text is dropped: it may quote token parts
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperrors.ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperrors.ErrTokenInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.ErrTokenExpired
	default:
		return apperrors.ErrTokenMalformed
	}
}
