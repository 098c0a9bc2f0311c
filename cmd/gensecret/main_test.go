package main

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_write(t *testing.T) {
	t.Run("two different secrets", func(t *testing.T) {
		buf := &bytes.Buffer{}

		err := write(buf, rand.Reader)

		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)

		access, ok := strings.CutPrefix(lines[0], "ACCESS_TOKEN_SECRET=")
		require.True(t, ok)
		refresh, ok := strings.CutPrefix(lines[1], "REFRESH_TOKEN_SECRET=")
		require.True(t, ok)
		require.Len(t, access, 2*SecretKeyBytesLen)
		require.NotEqual(t, access, refresh)
	})

	t.Run("short random", func(t *testing.T) {
		err := write(&bytes.Buffer{}, strings.NewReader("not enough"))

		require.Error(t, err)
	})
}
