package utils

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{name: "empty path", input: "", wantError: true},
		{name: "relative path", input: "./test", wantError: false},
		{name: "absolute path", input: "/tmp/test", wantError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolvePath(tt.input)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(result))
		})
	}
}

func TestRelKey(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "home", "me", "repo")

	key, err := RelKey(root, filepath.Join(root, "docs", "img", "logo.png"))
	require.NoError(t, err)
	assert.Equal(t, "docs/img/logo.png", key)

	key, err = RelKey(root, root)
	require.NoError(t, err)
	assert.Equal(t, "", key)

	_, err = RelKey(root, filepath.Join(root, "..", "other", "a.txt"))
	assert.Error(t, err)
}

func TestNormKey(t *testing.T) {
	assert.Equal(t, "a/b/c.txt", NormKey(`a\b\c.txt`))
	assert.Equal(t, "a/b", NormKey("/a/b"))
}

func TestKeyToPath(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, filepath.Join(root, "docs", "readme.md"), KeyToPath(root, "docs/readme.md"))
	assert.Equal(t, filepath.Join(root, "empty"), KeyToPath(root, "empty/"))
}

func TestFolderEntry(t *testing.T) {
	assert.True(t, IsFolderEntry("empty/"))
	assert.True(t, IsFolderEntry("empty"+string(filepath.Separator)))
	assert.False(t, IsFolderEntry("a.txt"))
	assert.Equal(t, "empty", TrimFolderMarker("empty/"))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "a.txt")

	n, err := WriteFileAtomic(target, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// overwrite keeps a single file and no temp leftovers
	_, err = WriteFileAtomic(target, strings.NewReader("bye"))
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExistence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(file))
	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.True(t, PathExists(dir))
	assert.False(t, PathExists(filepath.Join(dir, "missing")))
}

func TestEnsureDir_FileInTheWay(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "docs")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	err := EnsureDir(file)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ENOTDIR)

	require.NoError(t, EnsureDir(filepath.Join(dir, "a", "b")))
	assert.True(t, DirExists(filepath.Join(dir, "a", "b")))
	require.NoError(t, EnsureDir(dir))
}

func TestCanonicalKey(t *testing.T) {
	assert.Equal(t, "c.txt", CanonicalKey("/c.txt"))
	assert.Equal(t, "d/e.txt", CanonicalKey("d//e.txt"))
	assert.Equal(t, "empty", CanonicalKey("empty/"))
	assert.Equal(t, []string{"a", "b"}, KeySegments("/a//b/"))
	assert.Empty(t, KeySegments("//"))
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	p, err := SafeJoin(root, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a.txt"), p)

	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := SafeJoin(root, name)
		assert.Error(t, err, name)
	}
}
