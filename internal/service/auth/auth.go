package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/metrics"
	"github.com/nkiryanov/vidtube/internal/models"
)

const (
	defaultAccessCookieName  = "accessToken"
	defaultRefreshCookieName = "refreshToken"
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
)

type tokenManager interface {
	IssuePair(ctx context.Context, accountID uuid.UUID) (models.TokenPair, error)
	ValidateAccess(access string) (uuid.UUID, error)
	Rotate(ctx context.Context, refresh string) (models.TokenPair, error)
	Revoke(ctx context.Context, accountID uuid.UUID) error
}

type accountService interface {
	GetByID(ctx context.Context, id uuid.UUID) (models.Account, error)
	FindByUsernameOrEmail(ctx context.Context, username string, email string) (models.Account, error)
	ChangePassword(ctx context.Context, id uuid.UUID, oldPassword string, newPassword string) error
}

type Config struct {
	// Hasher to compare passwords on login
	// If not set than DefaultHasher is used
	Hasher PasswordHasher

	// Cookie names the tokens are delivered with
	AccessCookieName  string
	RefreshCookieName string

	// Optional counters
	Metrics *metrics.Auth

	// Clock to compute cookie lifetime. If not set than time.Now is used
	Now func() time.Time
}

type LoginParams struct {
	Username string
	Email    string
	Password string
}

// Auth service
type AuthService struct {
	// Access token may be sent in the header as well: "Authorization: Bearer <token>"
	accessHeaderName string
	accessAuthScheme string

	accessCookieName  string
	refreshCookieName string

	hasher  PasswordHasher
	metrics *metrics.Auth
	now     func() time.Time

	tokens   tokenManager
	accounts accountService
}

func NewService(cfg Config, tokens tokenManager, accounts accountService) (*AuthService, error) {
	if cfg.Hasher == nil {
		cfg.Hasher = DefaultHasher
	}
	if cfg.AccessCookieName == "" {
		cfg.AccessCookieName = defaultAccessCookieName
	}
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = defaultRefreshCookieName
	}
	if cfg.AccessCookieName == cfg.RefreshCookieName {
		return nil, fmt.Errorf("access and refresh cookies must have different names, got %q", cfg.AccessCookieName)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &AuthService{
		accessHeaderName:  defaultAccessHeaderName,
		accessAuthScheme:  defaultAccessAuthScheme,
		accessCookieName:  cfg.AccessCookieName,
		refreshCookieName: cfg.RefreshCookieName,
		hasher:            cfg.Hasher,
		metrics:           cfg.Metrics,
		now:               cfg.Now,
		tokens:            tokens,
		accounts:          accounts,
	}, nil
}

// Login by username or email. Username wins when both are given
func (s *AuthService) Login(ctx context.Context, p LoginParams) (account models.Account, pair models.TokenPair, err error) {
	defer func() { s.metrics.Login(err) }()

	username := strings.ToLower(strings.TrimSpace(p.Username))
	email := strings.TrimSpace(p.Email)
	if username == "" && email == "" {
		return account, pair, fmt.Errorf("%w: username or email is required", apperrors.ErrValidation)
	}
	if p.Password == "" {
		return account, pair, fmt.Errorf("%w: password is required", apperrors.ErrValidation)
	}

	account, err = s.accounts.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return account, pair, err
	}

	if !VerifyPassword(s.hasher, account.HashedPassword, p.Password) {
		return models.Account{}, pair, apperrors.ErrWrongPassword
	}

	pair, err = s.tokens.IssuePair(ctx, account.ID)
	if err != nil {
		return models.Account{}, pair, fmt.Errorf("token could not be issued. Err: %w", err)
	}

	return account, pair, nil
}

// Logout forgets account refresh token
func (s *AuthService) Logout(ctx context.Context, accountID uuid.UUID) error {
	err := s.tokens.Revoke(ctx, accountID)
	if err != nil {
		return err
	}

	s.metrics.Revocation()
	return nil
}

// Exchange refresh token for new pair
func (s *AuthService) Refresh(ctx context.Context, refresh string) (pair models.TokenPair, err error) {
	defer func() { s.metrics.Rotation(err) }()

	return s.tokens.Rotate(ctx, refresh)
}

// Change password and end current session, so every device has to login again
func (s *AuthService) ChangePassword(ctx context.Context, accountID uuid.UUID, oldPassword string, newPassword string) error {
	err := s.accounts.ChangePassword(ctx, accountID, oldPassword, newPassword)
	if err != nil {
		return err
	}

	return s.Logout(ctx, accountID)
}

// Get request and return account if it authenticated or error
// Access token is taken from cookie first, then from authorization header
func (s *AuthService) Authenticate(ctx context.Context, r *http.Request) (account models.Account, err error) {
	defer func() { s.metrics.Authentication(err) }()

	accountID, err := s.tokens.ValidateAccess(s.getAccessString(r))
	if err != nil {
		return account, err
	}

	return s.accounts.GetByID(ctx, accountID)
}

func (s *AuthService) getAccessString(r *http.Request) string {
	if c, err := r.Cookie(s.accessCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	header := r.Header.Get(s.accessHeaderName)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, s.accessAuthScheme) {
		return ""
	}

	return strings.TrimSpace(token)
}

// Get refresh token from request cookie or from value client sent in the body
func (s *AuthService) GetRefreshString(r *http.Request, bodyValue string) (string, error) {
	if c, err := r.Cookie(s.refreshCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	if bodyValue = strings.TrimSpace(bodyValue); bodyValue != "" {
		return bodyValue, nil
	}

	return "", apperrors.ErrTokenMissing
}

// Set auth tokens (access, refresh) to response cookies
func (s *AuthService) SetTokenPair(w http.ResponseWriter, pair models.TokenPair) {
	now := s.now()
	http.SetCookie(w, s.cookie(s.accessCookieName, pair.Access.Value, maxAge(now, pair.Access.ExpiresAt)))
	http.SetCookie(w, s.cookie(s.refreshCookieName, pair.Refresh.Value, maxAge(now, pair.Refresh.ExpiresAt)))
}

// Expire both token cookies
func (s *AuthService) ClearTokens(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(s.accessCookieName, "", -1))
	http.SetCookie(w, s.cookie(s.refreshCookieName, "", -1))
}

func (s *AuthService) cookie(name string, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// Cookie MaxAge 0 means session cookie, so already expired tokens get -1 (delete now)
func maxAge(now time.Time, expiresAt time.Time) int {
	seconds := int(expiresAt.Sub(now).Seconds())
	if seconds <= 0 {
		return -1
	}
	return seconds
}
