package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/handlers/render"
	"github.com/nkiryanov/vidtube/internal/handlers/userctx"
	"github.com/nkiryanov/vidtube/internal/logger"
	"github.com/nkiryanov/vidtube/internal/models"
	"github.com/nkiryanov/vidtube/internal/service/account"
	"github.com/nkiryanov/vidtube/internal/service/auth"
)

// Public view of account; never contains password hash or tokens
type accountResponse struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullname"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage"`
	CreatedAt  time.Time `json:"createdAt"`
}

func newAccountResponse(a models.Account) accountResponse {
	return accountResponse{
		ID:         a.ID,
		Username:   a.Username,
		Email:      a.Email,
		FullName:   a.FullName,
		Avatar:     a.AvatarURL,
		CoverImage: a.CoverImageURL,
		CreatedAt:  a.CreatedAt,
	}
}

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Render service error; failures of the server itself are logged
func renderError(w http.ResponseWriter, l logger.Logger, msg string, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindDependency, apperrors.KindUnknown:
		l.Error(msg, "error", err)
	default:
		l.Debug(msg, "error", err)
	}
	render.Error(w, err)
}

func handleRegister(s accountService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRegisterBodySize)
		err := r.ParseMultipartForm(1 << 20)
		if err != nil {
			render.ServiceError(w, apperrors.KindValidation, "Failed to parse multipart form", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll() // nolint:errcheck

		dir, err := os.MkdirTemp("", "vidtube-upload-*")
		if err != nil {
			renderError(w, l, "Can't create upload dir", err)
			return
		}
		defer os.RemoveAll(dir) // nolint:errcheck

		avatarPath, err := saveFormFile(r, "avatar", dir)
		if err != nil {
			renderError(w, l, "Can't save avatar", err)
			return
		}
		coverPath, err := saveFormFile(r, "coverImage", dir)
		if err != nil {
			renderError(w, l, "Can't save cover image", err)
			return
		}

		created, err := s.Register(r.Context(), account.RegisterParams{
			FullName:       r.FormValue("fullname"),
			Username:       r.FormValue("username"),
			Email:          r.FormValue("email"),
			Password:       r.FormValue("password"),
			AvatarPath:     avatarPath,
			CoverImagePath: coverPath,
		})
		if err != nil {
			renderError(w, l, "Registration failed", err)
			return
		}

		l.Info("Account registered", "account_id", created.ID)
		render.JSON(w, http.StatusCreated, newAccountResponse(created), "User registered successfully")
	})
}

// Copy form file to dir and return its path, or empty path if file was not sent
func saveFormFile(r *http.Request, field string, dir string) (string, error) {
	src, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer src.Close() // nolint:errcheck

	// Client file name is kept for its extension only; media type is detected from content later
	dst, err := os.Create(filepath.Join(dir, field+filepath.Ext(filepath.Base(header.Filename))))
	if err != nil {
		return "", err
	}
	defer dst.Close() // nolint:errcheck

	_, err = io.Copy(dst, src)
	if err != nil {
		return "", fmt.Errorf("can't copy %s. Err: %w", field, err)
	}

	return dst.Name(), nil
}

func handleLogin(s authService, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required_without=Email"`
		Email    string `json:"email" validate:"required_without=Username"`
		Password string `json:"password" validate:"notblank"`
	}
	type response struct {
		User accountResponse `json:"user"`
		tokensResponse
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		logged, pair, err := s.Login(r.Context(), auth.LoginParams{
			Username: data.Username,
			Email:    data.Email,
			Password: data.Password,
		})
		if err != nil {
			renderError(w, l, "Login failed", err)
			return
		}

		s.SetTokenPair(w, pair)
		render.JSON(w, http.StatusOK, response{
			User:           newAccountResponse(logged),
			tokensResponse: tokensResponse{AccessToken: pair.Access.Value, RefreshToken: pair.Refresh.Value},
		}, "User logged in successfully")
	})
}

func handleLogout(s authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current, _ := userctx.FromContext(r.Context())

		err := s.Logout(r.Context(), current.ID)
		if err != nil {
			renderError(w, l, "Logout failed", err)
			return
		}

		s.ClearTokens(w)
		render.JSON(w, http.StatusOK, nil, "User logged out")
	})
}

func handleRefreshToken(s authService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Body is optional: token may come in cookie only
		var data request
		err := json.NewDecoder(r.Body).Decode(&data)
		if err != nil && !errors.Is(err, io.EOF) {
			render.DecodeError(w, err)
			return
		}

		refresh, err := s.GetRefreshString(r, data.RefreshToken)
		if err != nil {
			render.Error(w, err)
			return
		}

		pair, err := s.Refresh(r.Context(), refresh)
		if err != nil {
			renderError(w, l, "Refresh failed", err)
			return
		}

		s.SetTokenPair(w, pair)
		render.JSON(w, http.StatusOK, tokensResponse{
			AccessToken:  pair.Access.Value,
			RefreshToken: pair.Refresh.Value,
		}, "Access token refreshed")
	})
}

func handleChangePassword(s authService, l logger.Logger) http.Handler {
	type request struct {
		OldPassword string `json:"oldPassword" validate:"required"`
		NewPassword string `json:"newPassword" validate:"notblank"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}
		current, _ := userctx.FromContext(r.Context())

		err = s.ChangePassword(r.Context(), current.ID, data.OldPassword, data.NewPassword)
		if err != nil {
			renderError(w, l, "Password change failed", err)
			return
		}

		// Session is over, client has to login with new password
		s.ClearTokens(w)
		render.JSON(w, http.StatusOK, nil, "Password changed successfully")
	})
}

func handleCurrentUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current, _ := userctx.FromContext(r.Context())
		render.JSON(w, http.StatusOK, newAccountResponse(current), "Current user fetched successfully")
	})
}
