package utils

import (
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	defaultContentType = "application/octet-stream"
	sniffLen           = 512
)

// DetectContentType sniffs the head of a local file, falling back to its extension.
func DetectContentType(path string) string {
	if ct := contentTypeFromExt(path); isTextLike(path) {
		return ct
	}

	f, err := os.Open(path)
	if err != nil {
		return contentTypeFromExt(path)
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, _ := io.ReadFull(f, buf)
	if n > 0 {
		if mt := mimetype.Detect(buf[:n]); mt != nil && mt.String() != defaultContentType {
			return mt.String()
		}
	}
	return contentTypeFromExt(path)
}

func contentTypeFromExt(key string) string {
	if isTextLike(key) {
		return "text/plain; charset=utf-8"
	} else if mimeType := mime.TypeByExtension(filepath.Ext(key)); mimeType != "" {
		return mimeType
	}
	return defaultContentType
}

func isTextLike(key string) bool {
	return strings.HasSuffix(key, ".yaml") ||
		strings.HasSuffix(key, ".yml") ||
		strings.HasSuffix(key, ".toml") ||
		strings.HasSuffix(key, ".md")
}
