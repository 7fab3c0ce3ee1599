package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// KeySep is the delimiter object stores use by convention for folders.
const KeySep = "/"

func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}

	// Expand `~` to the user's home directory
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("failed to retrieve home directory")
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return filepath.Clean(absPath), nil
}

func EnsureParent(path string) error {
	return EnsureDir(filepath.Dir(path))
}

// EnsureDir creates path if needed. A non-directory already at path is an error.
func EnsureDir(path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil
	}
	return os.MkdirAll(path, 0o755)
}

func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// PathExists reports whether anything (file or directory) exists at path.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NormKey turns a relative OS path into an object key: forward slashes, no leading slash.
func NormKey(relPath string) string {
	key := strings.ReplaceAll(relPath, "\\", KeySep)
	key = filepath.ToSlash(key)
	return strings.TrimLeft(key, KeySep)
}

// RelKey strips root from path and returns the remainder as an object key.
func RelKey(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside %q", path, root)
	}
	return NormKey(rel), nil
}

// KeyToPath maps an object key below root back to a local path.
func KeyToPath(root, key string) string {
	key = strings.TrimSuffix(key, KeySep)
	return filepath.Join(root, filepath.FromSlash(key))
}

// IsFolderEntry reports whether a diff entry or key denotes a folder.
func IsFolderEntry(entry string) bool {
	return strings.HasSuffix(entry, KeySep) || strings.HasSuffix(entry, string(filepath.Separator))
}

// TrimFolderMarker removes the trailing separator of a folder entry.
func TrimFolderMarker(entry string) string {
	entry = strings.TrimSuffix(entry, KeySep)
	return strings.TrimSuffix(entry, string(filepath.Separator))
}

// KeySegments splits key on "/" and drops empty segments, so "/a//b" yields [a b].
func KeySegments(key string) []string {
	var segments []string
	for _, s := range strings.Split(key, KeySep) {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// CanonicalKey is the form a key takes in a hierarchy path: no empty segments,
// no leading or trailing separator.
func CanonicalKey(key string) string {
	return strings.Join(KeySegments(key), KeySep)
}

// IsSafeName reports whether name can be used as a single path element below a
// directory without leaving it.
func IsSafeName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// SafeJoin joins one element onto dir, rejecting names that would escape it.
func SafeJoin(dir, name string) (string, error) {
	if !IsSafeName(name) {
		return "", fmt.Errorf("unsafe path element %q below %s", name, dir)
	}
	return filepath.Join(dir, name), nil
}
