package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/handlers/middleware"
	"github.com/nkiryanov/vidtube/internal/logger"
	"github.com/nkiryanov/vidtube/internal/models"
	"github.com/nkiryanov/vidtube/internal/service/account"
	"github.com/nkiryanov/vidtube/internal/service/auth"
)

// Limit of registration form including files
const maxRegisterBodySize = 16 << 20

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// Extra routes mounted next to the API, e.g. /metrics
type Route struct {
	Pattern string
	Handler http.Handler
}

func NewRouter(
	authService authService,
	accountService accountService,
	logger logger.Logger,
	extra ...Route,
) http.Handler {
	withAuth := middleware.Auth(authService)

	apiusers := http.NewServeMux()

	apiusers.Handle("POST /register", handleRegister(accountService, logger))
	apiusers.Handle("POST /login", handleLogin(authService, logger))
	apiusers.Handle("POST /refresh-token", handleRefreshToken(authService, logger))

	apiusers.Handle("POST /logout", withAuth(handleLogout(authService, logger)))
	apiusers.Handle("POST /change-password", withAuth(handleChangePassword(authService, logger)))
	apiusers.Handle("GET /current-user", withAuth(handleCurrentUser()))

	root := http.NewServeMux()
	root.Handle("/api/v1/users/", http.StripPrefix("/api/v1/users", apiusers))
	for _, route := range extra {
		root.Handle(route.Pattern, route.Handler)
	}

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Login by username or email and password
	// Has to return apperrors.ErrAccountNotFound if account not found
	// and apperrors.ErrWrongPassword if password does not match
	Login(ctx context.Context, p auth.LoginParams) (models.Account, models.TokenPair, error)

	// End account session: stored refresh token is forgotten
	Logout(ctx context.Context, accountID uuid.UUID) error

	// Refresh tokens using refresh token
	// If token expired: has to return apperrors.ErrTokenExpired
	// If token used or revoked: has to return apperrors.ErrTokenReused
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Change password and end account session
	ChangePassword(ctx context.Context, accountID uuid.UUID, oldPassword string, newPassword string) error

	// Set auth tokens (access, refresh) to response
	SetTokenPair(w http.ResponseWriter, pair models.TokenPair)

	// Expire token cookies
	ClearTokens(w http.ResponseWriter)

	// Get refresh token from request cookie or from value sent in body
	GetRefreshString(r *http.Request, bodyValue string) (string, error)

	// Get request and return account if it authenticated or error
	Authenticate(ctx context.Context, r *http.Request) (models.Account, error)
}

type accountService interface {
	Register(ctx context.Context, p account.RegisterParams) (models.Account, error)
}
