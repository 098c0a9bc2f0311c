package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/testutil"
)

func Test_initUploader(t *testing.T) {
	t.Run("local media served without sniffing", func(t *testing.T) {
		c := NewConfig()
		c.MediaDir = t.TempDir()
		c.MediaURL = "http://localhost/static"

		uploader, route, err := initUploader(t.Context(), c)
		require.NoError(t, err)
		require.NotNil(t, route, "local media has to be served")

		url, err := uploader.Upload(t.Context(), testutil.WriteFile(t, "avatar.png", testutil.PNG))
		require.NoError(t, err)

		mux := http.NewServeMux()
		mux.Handle(route.Pattern, route.Handler)
		req := httptest.NewRequest(http.MethodGet, url, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	})

	t.Run("local media refuses html", func(t *testing.T) {
		c := NewConfig()
		c.MediaDir = t.TempDir()

		uploader, _, err := initUploader(t.Context(), c)
		require.NoError(t, err)

		_, err = uploader.Upload(t.Context(), testutil.WriteFile(t, "x.html", []byte("<html><script>alert(1)</script></html>")))

		require.ErrorIs(t, err, apperrors.ErrValidation)
		entries, err := os.ReadDir(c.MediaDir)
		require.NoError(t, err)
		require.Empty(t, entries)
	})
}
