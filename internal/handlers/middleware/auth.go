package middleware

import (
	"context"
	"net/http"

	"github.com/nkiryanov/vidtube/internal/handlers/render"
	"github.com/nkiryanov/vidtube/internal/handlers/userctx"
	"github.com/nkiryanov/vidtube/internal/models"
)

type authService interface {
	Authenticate(ctx context.Context, r *http.Request) (models.Account, error)
}

// Auth lets through only requests with valid access token and puts the account to request context
// Rejected requests get response matching the failure: expired, missing, invalid and so on
func Auth(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, err := as.Authenticate(r.Context(), r)
			if err != nil {
				render.Error(w, err)
				return
			}
			ctx := userctx.New(r.Context(), account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
