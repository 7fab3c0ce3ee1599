package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/bucketsync/internal/errs"
	"github.com/openmined/bucketsync/internal/objstore"
	"github.com/openmined/bucketsync/internal/utils"
)

// NameResolver looks up the friendly name of the repository stored in a bucket.
type NameResolver interface {
	FriendlyName(ctx context.Context, bucketID string) (string, error)
}

type Builder struct {
	store  objstore.Store
	names  NameResolver
	ignore *IgnoreList
}

func NewBuilder(store objstore.Store, names NameResolver) *Builder {
	return &Builder{
		store:  store,
		names:  names,
		ignore: DefaultIgnoreList(),
	}
}

// WithIgnore returns a copy of the builder that filters with il.
func (b *Builder) WithIgnore(il *IgnoreList) *Builder {
	cp := *b
	cp.ignore = il
	return &cp
}

// BuildLocal walks rootPath. The root node is named after the directory and
// carries its absolute path. Empty directories are kept as childless folders.
func (b *Builder) BuildLocal(rootPath string) (*Node, error) {
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rootPath, err)
	}
	return b.buildLocal(absRoot, "")
}

// BuildLocalSubtree builds the tree of a folder inside repoDir. Ignore rules are
// matched against paths relative to repoDir, as they are for the full tree.
func (b *Builder) BuildLocalSubtree(repoDir, path string) (*Node, error) {
	absRoot, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	absRepo, err := filepath.Abs(repoDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", repoDir, err)
	}
	rel, err := utils.RelKey(absRepo, absRoot)
	if err != nil {
		return nil, err
	}
	return b.buildLocal(absRoot, rel)
}

func (b *Builder) buildLocal(absRoot, relRoot string) (*Node, error) {
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, errs.FromFS("stat", absRoot, err)
	}

	name := filepath.Base(absRoot)
	if !info.IsDir() {
		return NewFile(name, absRoot), nil
	}

	root := NewFolder(name, absRoot)
	if err := b.readLocalDir(absRoot, root, relRoot); err != nil {
		return nil, err
	}
	return root, nil
}

func (b *Builder) readLocalDir(dir string, parent *Node, relDir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errs.FromFS("read dir", dir, err)
	}

	for _, entry := range entries {
		entryPath := filepath.Join(dir, entry.Name())
		rel := entry.Name()
		if relDir != "" {
			rel = relDir + utils.KeySep + entry.Name()
		}

		isDir := entry.IsDir()
		// symlinks take the type of their target
		if entry.Type()&os.ModeSymlink != 0 {
			info, err := os.Stat(entryPath)
			if err != nil {
				slog.Warn("skip dangling symlink", "path", entryPath, "error", err)
				continue
			}
			isDir = info.IsDir()
		}

		if b.ignore.ShouldIgnore(rel, isDir) {
			continue
		}

		if !isDir {
			parent.Children = append(parent.Children, NewFile(entry.Name(), entryPath))
			continue
		}

		child := NewFolder(entry.Name(), entryPath)
		if err := b.readLocalDir(entryPath, child, rel); err != nil {
			return err
		}
		parent.Children = append(parent.Children, child)
	}
	return nil
}

// BuildRemote lists every object in the bucket and folds the keys into a tree.
// The root is named after the repository's friendly name and has an empty path.
func (b *Builder) BuildRemote(ctx context.Context, bucketID string) (*Node, error) {
	objects, err := b.store.ListAllObjects(ctx, bucketID)
	if err != nil {
		return nil, fmt.Errorf("list bucket %s: %w", bucketID, err)
	}

	root := NewFolder(b.rootName(ctx, bucketID), "")
	index := map[*Node]map[string]*Node{root: {}}

	for _, obj := range objects {
		b.insertKey(root, index, obj.Key)
	}
	return root, nil
}

func (b *Builder) rootName(ctx context.Context, bucketID string) string {
	if b.names == nil {
		return bucketID
	}
	name, err := b.names.FriendlyName(ctx, bucketID)
	if err != nil || name == "" {
		slog.Debug("friendly name unavailable, using bucket id", "bucket", bucketID, "error", err)
		return bucketID
	}
	return name
}

// insertKey walks or creates the folders for key and appends a file for its last
// segment. Keys ending in "/" are folder markers and add no file.
func (b *Builder) insertKey(root *Node, index map[*Node]map[string]*Node, key string) {
	isMarker := strings.HasSuffix(key, utils.KeySep)
	segments := utils.KeySegments(key)
	if len(segments) == 0 {
		return
	}
	for _, s := range segments {
		if !utils.IsSafeName(s) {
			slog.Warn("skipping key that leaves the repository root", "key", key, "error", errs.Conflict("build remote", key, nil))
			return
		}
	}

	folders := segments[:len(segments)-1]
	if isMarker {
		folders = segments
	}

	current := root
	for i, name := range folders {
		prefix := strings.Join(segments[:i+1], utils.KeySep)
		if b.ignore.ShouldIgnore(prefix, true) {
			return
		}

		child, ok := index[current][name]
		if !ok {
			child = NewFolder(name, prefix)
			current.Children = append(current.Children, child)
			index[current][name] = child
			index[child] = map[string]*Node{}
		} else if child.Type != Folder {
			slog.Warn("key conflicts with file of same name", "key", key, "error", errs.Conflict("build remote", prefix, nil))
			return
		}
		current = child
	}

	if isMarker {
		return
	}

	name := segments[len(segments)-1]
	if b.ignore.ShouldIgnore(key, false) {
		return
	}
	if existing, ok := index[current][name]; ok {
		if existing.Type != File {
			slog.Warn("key conflicts with folder of same name", "key", key, "error", errs.Conflict("build remote", key, nil))
		}
		return
	}

	file := NewFile(name, key)
	current.Children = append(current.Children, file)
	index[current][name] = file
}
