// Package blobstore keeps uploaded media and returns URL it is served from
package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/apperrors"
)

// Uploader stores local file and returns its public URL
// Errors wrap apperrors.ErrBlobStoreUnavailable, or apperrors.ErrValidation for content store refuses
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Object key: <prefix>/<yyyy>/<mm>/<dd>/<uuid><ext>
func NewKey(prefix string, now time.Time, ext string) string {
	name := uuid.NewString() + strings.ToLower(ext)
	return path.Join(prefix, now.UTC().Format("2006/01/02"), name)
}

// Types accepted as avatar or cover image
// SVG is left out: it may carry script
var imageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// Content type and extension of the file, both detected from its content
// Name of the file is client controlled and never trusted
func Detect(localPath string) (contentType string, ext string, err error) {
	mt, err := mimetype.DetectFile(localPath)
	if err != nil {
		return "", "", err
	}

	return mt.String(), mt.Extension(), nil
}

// DetectImage is Detect that accepts raster images only
// Other content is apperrors.ErrValidation; unreadable file is apperrors.ErrBlobStoreUnavailable
func DetectImage(localPath string) (contentType string, ext string, err error) {
	contentType, ext, err = Detect(localPath)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", apperrors.ErrBlobStoreUnavailable, err)
	}

	if !mimetype.EqualsAny(contentType, imageTypes...) {
		return "", "", fmt.Errorf("%w: file is not an image (%s)", apperrors.ErrValidation, contentType)
	}

	return contentType, ext, nil
}

// Local stores files in directory; handy for development without object storage
type Local struct {
	// Directory files are copied to
	Dir string

	// URL the directory is served from
	BaseURL string

	// Clock. If not set than time.Now is used
	Now func() time.Time
}

func (s *Local) Upload(_ context.Context, localPath string) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	// Directory is served from the API origin, so only images get there
	_, ext, err := DetectImage(localPath)
	if err != nil {
		return "", err
	}

	key := NewKey("", now(), ext)
	dst := filepath.Join(s.Dir, filepath.FromSlash(key))

	err = copyFile(localPath, dst)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrBlobStoreUnavailable, err)
	}

	return strings.TrimRight(s.BaseURL, "/") + "/" + key, nil
}

func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	err = os.MkdirAll(filepath.Dir(dst), 0o755)
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}
