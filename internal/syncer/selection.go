package syncer

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/bucketsync/internal/diff"
	"github.com/openmined/bucketsync/internal/utils"
)

// Selection picks entries out of a diff.Result. Each pattern is either an exact
// entry (with or without the folder's trailing slash) or a doublestar glob
// matched against the entry's repository-relative path.
type Selection struct {
	New      []string `json:"new,omitempty"`
	Modified []string `json:"modified,omitempty"`
	Deleted  []string `json:"deleted,omitempty"`
	// All selects every entry of every category.
	All bool `json:"all,omitempty"`
}

func SelectAll() Selection {
	return Selection{All: true}
}

func (s Selection) IsEmpty() bool {
	return !s.All && len(s.New) == 0 && len(s.Modified) == 0 && len(s.Deleted) == 0
}

func (s Selection) Validate() error {
	for _, patterns := range [][]string{s.New, s.Modified, s.Deleted} {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(utils.NormKey(p)) {
				return fmt.Errorf("invalid pattern %q", p)
			}
		}
	}
	return nil
}

// Apply returns the subset of r that s selects, keeping r's order.
func (s Selection) Apply(r diff.Result) (diff.Result, error) {
	if s.All {
		return r, nil
	}
	if err := s.Validate(); err != nil {
		return diff.Result{}, err
	}
	return diff.Result{
		NewFiles:      filter(r.NewFiles, s.New),
		ModifiedFiles: filter(r.ModifiedFiles, s.Modified),
		DeletedFiles:  filter(r.DeletedFiles, s.Deleted),
	}, nil
}

// filter keeps the entries matched by patterns. A pattern ending in "/" names
// folders only; one without it names files, and folders given without the slash.
func filter(entries, patterns []string) []string {
	if len(patterns) == 0 || len(entries) == 0 {
		return nil
	}

	files := mapset.NewThreadUnsafeSet[string]()
	folders := mapset.NewThreadUnsafeSet[string]()
	var fileGlobs, folderGlobs []string
	for _, p := range patterns {
		p = utils.NormKey(p)
		isGlob := strings.ContainsAny(p, "*?[{")
		if utils.IsFolderEntry(p) {
			p = utils.TrimFolderMarker(p)
			if isGlob {
				folderGlobs = append(folderGlobs, p)
			} else {
				folders.Add(p)
			}
			continue
		}
		if isGlob {
			fileGlobs = append(fileGlobs, p)
			folderGlobs = append(folderGlobs, p)
		} else {
			files.Add(p)
			folders.Add(p)
		}
	}

	var picked []string
	for _, entry := range entries {
		if utils.IsFolderEntry(entry) {
			name := utils.TrimFolderMarker(entry)
			if folders.Contains(name) || matchAny(folderGlobs, name) {
				picked = append(picked, entry)
			}
			continue
		}
		if files.Contains(entry) || matchAny(fileGlobs, entry) {
			picked = append(picked, entry)
		}
	}
	return picked
}

func matchAny(globs []string, path string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}
