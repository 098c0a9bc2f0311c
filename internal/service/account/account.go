package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/blobstore"
	"github.com/nkiryanov/vidtube/internal/logger"
	"github.com/nkiryanov/vidtube/internal/models"
	"github.com/nkiryanov/vidtube/internal/repository"
	"github.com/nkiryanov/vidtube/internal/service/auth"
	"github.com/nkiryanov/vidtube/internal/service/validate"
)

// Field names match registration form so validation errors point to form fields
type RegisterParams struct {
	FullName string `json:"fullname" validate:"required,max=100"`
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"notblank,max=256"`

	// Local paths of uploaded files; avatar is required and cover image is optional
	AvatarPath     string `json:"avatar" validate:"required"`
	CoverImagePath string `json:"coverImage"`
}

type AccountService struct {
	hasher   auth.PasswordHasher
	storage  repository.Storage
	uploader blobstore.Uploader
	validate *validator.Validate
	logger   logger.Logger
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage, uploader blobstore.Uploader, l logger.Logger) *AccountService {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &AccountService{
		hasher:   hasher,
		storage:  storage,
		uploader: uploader,
		validate: validate.New(),
		logger:   l,
	}
}

// Register new account. Username is stored lowercased
func (s *AccountService) Register(ctx context.Context, p RegisterParams) (models.Account, error) {
	var account models.Account

	p.FullName = strings.TrimSpace(p.FullName)
	p.Username = strings.ToLower(strings.TrimSpace(p.Username))
	p.Email = strings.TrimSpace(p.Email)
	err := s.validate.Struct(p)
	if err != nil {
		return account, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	// Fail fast before uploading anything; unique index still guards the race
	_, err = s.storage.Account().GetAccountByUsernameOrEmail(ctx, p.Username, p.Email)
	switch {
	case err == nil:
		return account, apperrors.ErrAccountAlreadyExists
	case !errors.Is(err, apperrors.ErrAccountNotFound):
		return account, err
	}

	// Both files are checked before anything is uploaded
	if _, _, err := blobstore.DetectImage(p.AvatarPath); err != nil {
		return account, fmt.Errorf("avatar: %w", err)
	}
	if p.CoverImagePath != "" {
		if _, _, err := blobstore.DetectImage(p.CoverImagePath); err != nil {
			return account, fmt.Errorf("cover image: %w", err)
		}
	}

	avatarURL, err := s.uploader.Upload(ctx, p.AvatarPath)
	if err != nil {
		return account, fmt.Errorf("avatar upload failed. Err: %w", err)
	}

	var coverURL string
	if p.CoverImagePath != "" {
		coverURL, err = s.uploader.Upload(ctx, p.CoverImagePath)
		if err != nil {
			s.logger.Warn("cover image upload failed, account created without it", "error", err)
			coverURL = ""
		}
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return account, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	account, err = s.storage.Account().CreateAccount(ctx, repository.CreateAccountParams{
		Username:       p.Username,
		Email:          p.Email,
		FullName:       p.FullName,
		HashedPassword: hash,
		AvatarURL:      avatarURL,
		CoverImageURL:  coverURL,
	})
	if err != nil {
		return account, fmt.Errorf("can't create account. Err: %w", err)
	}

	return account, nil
}

func (s *AccountService) GetByID(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return s.storage.Account().GetAccountByID(ctx, id)
}

func (s *AccountService) FindByUsernameOrEmail(ctx context.Context, username string, email string) (models.Account, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.TrimSpace(email)
	if username == "" && email == "" {
		return models.Account{}, fmt.Errorf("%w: username or email is required", apperrors.ErrValidation)
	}

	return s.storage.Account().GetAccountByUsernameOrEmail(ctx, username, email)
}

// Replace password hash if old password matches
func (s *AccountService) ChangePassword(ctx context.Context, id uuid.UUID, oldPassword string, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: new password is required", apperrors.ErrValidation)
	}

	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		account, err := storage.Account().GetAccountByID(ctx, id)
		if err != nil {
			return err
		}

		if !auth.VerifyPassword(s.hasher, account.HashedPassword, oldPassword) {
			return apperrors.ErrWrongPassword
		}

		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return fmt.Errorf("can't use this as password, Err: %w", err)
		}

		return storage.Account().UpdatePasswordHash(ctx, id, hash)
	})
}
