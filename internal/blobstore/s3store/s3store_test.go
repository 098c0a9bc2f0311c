package s3store

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/vidtube/internal/apperrors"
)

// Request captured by fake S3 server
type putRequest struct {
	method      string
	path        string
	contentType string
	body        []byte
}

// Fake S3 that accepts PutObject and remembers it
func startS3(t *testing.T, status int) (*httptest.Server, func() []putRequest) {
	t.Helper()

	var (
		mu   sync.Mutex
		reqs []putRequest
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mu.Lock()
		reqs = append(reqs, putRequest{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        body,
		})
		mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []putRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]putRequest(nil), reqs...)
	}
}

func newStore(t *testing.T, endpoint string, publicURL string) *Store {
	t.Helper()

	s, err := New(t.Context(), Config{
		Endpoint:    endpoint,
		Region:      "us-east-1",
		Bucket:      "vidtube",
		AccessKey:   "minioadmin",
		SecretKey:   "minioadmin",
		Prefix:      "/media/",
		PublicURL:   publicURL,
		MaxAttempts: 1,
		Now:         func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return s
}

func writeFile(t *testing.T, name string, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	return p
}

func Test_Store(t *testing.T) {
	t.Parallel()

	t.Run("new requires bucket", func(t *testing.T) {
		_, err := New(t.Context(), Config{Endpoint: "http://127.0.0.1:9000"})

		require.Error(t, err)
	})

	t.Run("upload", func(t *testing.T) {
		srv, requests := startS3(t, http.StatusOK)
		s := newStore(t, srv.URL, "")

		url, err := s.Upload(t.Context(), writeFile(t, "notes.txt", "hello vidtube"))

		require.NoError(t, err)
		require.True(t, strings.HasPrefix(url, srv.URL+"/vidtube/media/2025/03/01/"), "url %q", url)
		require.True(t, strings.HasSuffix(url, ".txt"))

		reqs := requests()
		require.Len(t, reqs, 1)
		require.Equal(t, http.MethodPut, reqs[0].method)
		require.Equal(t, strings.TrimPrefix(url, srv.URL), reqs[0].path, "path style addressing")
		require.Equal(t, "text/plain; charset=utf-8", reqs[0].contentType)
		require.Equal(t, "hello vidtube", string(reqs[0].body))
	})

	t.Run("public url", func(t *testing.T) {
		srv, _ := startS3(t, http.StatusOK)
		s := newStore(t, srv.URL, "https://cdn.example.com/")

		url, err := s.Upload(t.Context(), writeFile(t, "notes.txt", "hello"))

		require.NoError(t, err)
		require.True(t, strings.HasPrefix(url, "https://cdn.example.com/media/2025/03/01/"), "url %q", url)
	})

	t.Run("server error", func(t *testing.T) {
		srv, requests := startS3(t, http.StatusInternalServerError)
		s := newStore(t, srv.URL, "")

		_, err := s.Upload(t.Context(), writeFile(t, "notes.txt", "hello"))

		require.ErrorIs(t, err, apperrors.ErrBlobStoreUnavailable)
		require.Len(t, requests(), 1, "no retries with single attempt")
	})

	t.Run("missing file", func(t *testing.T) {
		srv, requests := startS3(t, http.StatusOK)
		s := newStore(t, srv.URL, "")

		_, err := s.Upload(t.Context(), filepath.Join(t.TempDir(), "nope.png"))

		require.ErrorIs(t, err, apperrors.ErrBlobStoreUnavailable)
		require.Empty(t, requests())
	})
}
