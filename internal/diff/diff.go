// Package diff compares a local hierarchy with a remote one and reports what changed.
package diff

import (
	"context"
	"log/slog"

	"github.com/openmined/bucketsync/internal/errs"
	"github.com/openmined/bucketsync/internal/hierarchy"
	"github.com/openmined/bucketsync/internal/utils"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 8

// ModifiedChecker decides whether a local file differs from a remote object.
type ModifiedChecker interface {
	IsModified(ctx context.Context, bucket, remoteKey, localPath string) (bool, error)
}

type Differ struct {
	hasher  ModifiedChecker
	workers int
}

type Option func(*Differ)

// WithWorkers bounds how many sibling files are hashed at once.
func WithWorkers(n int) Option {
	return func(d *Differ) {
		if n > 0 {
			d.workers = n
		}
	}
}

func NewDiffer(hasher ModifiedChecker, opts ...Option) *Differ {
	d := &Differ{hasher: hasher, workers: defaultWorkers}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Diff compares the direct children of local and remote level by level.
// A file and a folder sharing a name are reported as the remote entry deleted
// and the local entry new. Hash failures abort the diff.
func (d *Differ) Diff(ctx context.Context, local, remote *hierarchy.Node, bucketID string) (Result, error) {
	return d.compare(ctx, local, remote, "", bucketID)
}

// childOutcome is what one local child contributes, kept in local discovery order.
type childOutcome struct {
	isNew      bool
	isModified bool
	conflict   bool
}

func (d *Differ) compare(ctx context.Context, local, remote *hierarchy.Node, relDir, bucketID string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	remoteIdx := remote.ChildIndex()
	localIdx := local.ChildIndex()
	outcomes := make([]childOutcome, len(local.Children))

	// hash sibling files concurrently, each writing only its own slot
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, lc := range local.Children {
		rc, ok := remoteIdx[lc.Name]
		if !ok {
			outcomes[i].isNew = true
			continue
		}
		if lc.Type != rc.Type {
			outcomes[i].conflict = true
			continue
		}
		if lc.Type == hierarchy.File {
			g.Go(func() error {
				modified, err := d.hasher.IsModified(gctx, bucketID, rc.Path, lc.Path)
				if err != nil {
					return err
				}
				outcomes[i].isModified = modified
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var result Result
	for i, lc := range local.Children {
		rel := join(relDir, lc.Name)
		out := outcomes[i]

		switch {
		case out.isNew:
			result.NewFiles = append(result.NewFiles, entry(rel, lc))
		case out.conflict:
			rc := remoteIdx[lc.Name]
			slog.Warn("file and folder share a name", "path", rel,
				"local", lc.Type, "remote", rc.Type, "error", errs.Conflict("diff", rel, nil))
			result.DeletedFiles = append(result.DeletedFiles, entry(rel, rc))
			result.NewFiles = append(result.NewFiles, entry(rel, lc))
		case lc.Type == hierarchy.File:
			if out.isModified {
				result.ModifiedFiles = append(result.ModifiedFiles, rel)
			}
		default:
			nested, err := d.compare(ctx, lc, remoteIdx[lc.Name], rel, bucketID)
			if err != nil {
				return Result{}, err
			}
			result = result.Merge(nested)
		}
	}

	for _, rc := range remote.Children {
		if _, ok := localIdx[rc.Name]; !ok {
			result.DeletedFiles = append(result.DeletedFiles, entry(join(relDir, rc.Name), rc))
		}
	}

	return result, nil
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + utils.KeySep + name
}

func entry(rel string, n *hierarchy.Node) string {
	if n.Type == hierarchy.Folder {
		return rel + utils.KeySep
	}
	return rel
}
