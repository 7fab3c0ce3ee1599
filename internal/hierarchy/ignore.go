package hierarchy

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/bucketsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is the per-repository rules file, read from the repository root.
const IgnoreFileName = ".bucketsyncignore"

var defaultIgnoreLines = []string{
	IgnoreFileName,
	// atomic download leftovers
	"*" + utils.TempPattern,
	// vcs
	".git/",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// IgnoreList filters entries out of both local and remote trees using gitignore rules.
type IgnoreList struct {
	ignore *gitignore.GitIgnore
	rules  int
}

// DefaultIgnoreList holds only the built-in rules.
func DefaultIgnoreList() *IgnoreList {
	return &IgnoreList{ignore: gitignore.CompileIgnoreLines(defaultIgnoreLines...)}
}

// LoadIgnoreList combines the built-in rules with the repository's ignore file, if any.
func LoadIgnoreList(repoDir string) *IgnoreList {
	lines := append([]string{}, defaultIgnoreLines...)
	ignorePath := filepath.Join(repoDir, IgnoreFileName)

	rules := 0
	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				lines = append(lines, line)
				rules++
			}
			if err := scanner.Err(); err != nil {
				slog.Warn("read ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	return &IgnoreList{ignore: gitignore.CompileIgnoreLines(lines...), rules: rules}
}

// Rules is the number of rules read from the repository's ignore file.
func (l *IgnoreList) Rules() int {
	if l == nil {
		return 0
	}
	return l.rules
}

// ShouldIgnore matches a repository-relative key. Folders are also tested with a
// trailing slash so directory-only patterns apply to the folder itself.
func (l *IgnoreList) ShouldIgnore(rel string, isDir bool) bool {
	if l == nil || l.ignore == nil || rel == "" {
		return false
	}
	rel = strings.TrimSuffix(rel, utils.KeySep)
	if l.ignore.MatchesPath(rel) {
		return true
	}
	return isDir && l.ignore.MatchesPath(rel+utils.KeySep)
}
