package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_SaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := NewLocalStorage(base)

	require.NoError(t, s.Save(ctx, "tests", "t1", "lipid.png", strings.NewReader("png-bytes")))
	assert.FileExists(t, filepath.Join(base, "tests", "t1", "lipid.png"))

	rc, err := s.Open(ctx, "tests", "t1", "lipid.png")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "png-bytes", string(body))

	require.NoError(t, s.Delete(ctx, "tests", "t1", "lipid.png"))
	_, err = os.Stat(filepath.Join(base, "tests", "t1"))
	assert.True(t, os.IsNotExist(err), "empty record dir is removed")

	_, err = s.Open(ctx, "tests", "t1", "lipid.png")
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting twice is fine
	assert.NoError(t, s.Delete(ctx, "tests", "t1", "lipid.png"))
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s := NewLocalStorage(t.TempDir())
	ctx := context.Background()

	assert.Error(t, s.Save(ctx, "tests", "..", "x", strings.NewReader("")))
	assert.Error(t, s.Save(ctx, "tests", "t1", "../../etc", strings.NewReader("")))
	_, err := s.Open(ctx, "", "t1", "a.png")
	assert.Error(t, err)
}

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"report.pdf":           "report.pdf",
		"my photo (1).jpg":     "my_photo__1_.jpg",
		"../../etc/passwd":     "passwd",
		`C:\Users\me\scan.png`: "scan.png",
		"..":                   "file",
		".hidden":              "hidden",
	}
	for in, want := range cases {
		assert.Equal(t, want, SafeName(in), in)
	}
}
