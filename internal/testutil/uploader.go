package testutil

import (
	"context"
	"path/filepath"
	"sync"
)

// Uploader which remembers uploaded files instead of storing them
type FakeUploader struct {
	// Called with 1-based upload number; returned error fails the upload
	FailOn func(n int, localPath string) error

	mu      sync.Mutex
	uploads []string
}

func (u *FakeUploader) Upload(_ context.Context, localPath string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	n := len(u.uploads) + 1
	if u.FailOn != nil {
		if err := u.FailOn(n, localPath); err != nil {
			return "", err
		}
	}

	u.uploads = append(u.uploads, localPath)
	return "https://cdn.test/" + filepath.Base(localPath), nil
}

// Local paths of successful uploads in call order
func (u *FakeUploader) Uploads() []string {
	u.mu.Lock()
	defer u.mu.Unlock()

	return append([]string(nil), u.uploads...)
}
