package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectContentType(t *testing.T) {
	dir := t.TempDir()

	png := filepath.Join(dir, "image.bin")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644))
	assert.Equal(t, "image/png", DetectContentType(png))

	md := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(md, []byte("# hi"), 0o644))
	assert.Equal(t, "text/plain; charset=utf-8", DetectContentType(md))

	// missing file falls back to extension
	assert.Equal(t, "text/plain; charset=utf-8", DetectContentType(filepath.Join(dir, "nope.yaml")))
	assert.Equal(t, defaultContentType, DetectContentType(filepath.Join(dir, "nope")))
}
