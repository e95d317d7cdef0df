package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSandbox_CreatesBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "dir")
	sandbox, err := NewSandbox(base)
	require.NoError(t, err)

	info, err := os.Stat(sandbox.BaseDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestResolvePath(t *testing.T) {
	sandbox, err := NewSandbox(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"simple file", "file.txt", false},
		{"nested path", "a/b/c.json", false},
		{"dot path", "./file.txt", false},
		{"traversal", "../escape.txt", true},
		{"deep traversal", "a/../../escape.txt", true},
		{"absolute path", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := sandbox.ResolvePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, sandbox.Contains(resolved))
		})
	}
}

func TestContains(t *testing.T) {
	sandbox, err := NewSandbox(t.TempDir())
	require.NoError(t, err)

	assert.True(t, sandbox.Contains(sandbox.BaseDir()))
	assert.True(t, sandbox.Contains(filepath.Join(sandbox.BaseDir(), "x")))
	assert.False(t, sandbox.Contains(filepath.Dir(sandbox.BaseDir())))
	// Sibling with the base dir as a name prefix must not match.
	assert.False(t, sandbox.Contains(sandbox.BaseDir()+"2"))
}

func TestAtomicWrite(t *testing.T) {
	sandbox, err := NewSandbox(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, sandbox.AtomicWrite("sub/data.json", []byte(`{"ok":true}`)))

	data, err := sandbox.ReadFile("sub/data.json")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	// Overwrite is atomic and leaves no temp files behind.
	require.NoError(t, sandbox.AtomicWrite("sub/data.json", []byte(`{"ok":false}`)))
	entries, err := sandbox.List("sub")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRemoveAll_RefusesBaseDir(t *testing.T) {
	sandbox, err := NewSandbox(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, sandbox.RemoveAll("."))
}

func TestExistsAndSize(t *testing.T) {
	sandbox, err := NewSandbox(t.TempDir())
	require.NoError(t, err)

	ok, err := sandbox.Exists("missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, sandbox.AtomicWrite("present.txt", []byte("abcd")))

	ok, err = sandbox.Exists("present.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	size, err := sandbox.Size("present.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
}
