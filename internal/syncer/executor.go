// Package syncer moves bytes between a local directory and a bucket: full clones in
// either direction, hash-gated pulls and selective pushes of a prior diff.
package syncer

import (
	"context"
	"fmt"
	"os"

	"github.com/openmined/bucketsync/internal/errs"
	"github.com/openmined/bucketsync/internal/hashing"
	"github.com/openmined/bucketsync/internal/hierarchy"
	"github.com/openmined/bucketsync/internal/metrics"
	"github.com/openmined/bucketsync/internal/objstore"
	"github.com/openmined/bucketsync/internal/utils"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 8

// Operation names, used in logs, item errors and metrics labels.
const (
	OpCloneRemote = "clone_remote"
	OpCloneLocal  = "clone_local"
	OpPull        = "pull"
	OpPushNew     = "push_new"
	OpPushModify  = "push_modified"
	OpPushDelete  = "push_deleted"
)

type Executor struct {
	store   objstore.Store
	hasher  *hashing.Provider
	workers int
	metrics *metrics.Recorder
	ignore  *hierarchy.IgnoreList
}

type Option func(*Executor)

// WithWorkers bounds concurrent transfers within one folder.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Executor) {
		e.metrics = r
	}
}

func NewExecutor(store objstore.Store, hasher *hashing.Provider, opts ...Option) *Executor {
	e := &Executor{
		store:   store,
		hasher:  hasher,
		workers: defaultWorkers,
		ignore:  hierarchy.DefaultIgnoreList(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithIgnore returns a copy of e that applies il when a push walks a newly added local folder.
func (e *Executor) WithIgnore(il *hierarchy.IgnoreList) *Executor {
	cp := *e
	cp.ignore = il
	return &cp
}

func (e *Executor) record(sum *Summary, op, path string, bytes int64, err error) {
	if err != nil {
		sum.fail(op, path, err)
		e.metrics.File(op, metrics.StatusFailed, 0)
		return
	}
	sum.succeed(bytes)
	e.metrics.File(op, metrics.StatusOK, bytes)
}

func (e *Executor) skipped(sum *Summary, op string) {
	sum.skip()
	e.metrics.File(op, metrics.StatusSkipped, 0)
}

// fileFunc handles one file node whose local counterpart lives at dest.
type fileFunc func(ctx context.Context, n *hierarchy.Node, dest string)

// remoteToLocal mirrors the folder structure of n under dir. Each folder is created
// before its files are handed to fn; files in one folder run in parallel.
func (e *Executor) remoteToLocal(ctx context.Context, op string, n *hierarchy.Node, dir string, sum *Summary, fn fileFunc) {
	if ctx.Err() != nil {
		return
	}
	if err := utils.EnsureDir(dir); err != nil {
		e.record(sum, op, dir, 0, errs.FromFS("mkdir", dir, err))
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for _, child := range n.Children {
		if child.Type != hierarchy.File {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		dest, err := utils.SafeJoin(dir, child.Name)
		if err != nil {
			e.record(sum, op, child.Path, 0, errs.Conflict(op, child.Path, err))
			continue
		}
		g.Go(func() error {
			fn(ctx, child, dest)
			return nil
		})
	}
	_ = g.Wait()

	for _, child := range n.Children {
		if child.Type != hierarchy.Folder {
			continue
		}
		dest, err := utils.SafeJoin(dir, child.Name)
		if err != nil {
			e.record(sum, op, child.Path, 0, errs.Conflict(op, child.Path, err))
			continue
		}
		e.remoteToLocal(ctx, op, child, dest, sum, fn)
	}
}

// localToRemote uploads every file below n, keyed relative to repoDir.
func (e *Executor) localToRemote(ctx context.Context, op string, n *hierarchy.Node, repoDir, bucket string, sum *Summary) {
	if ctx.Err() != nil {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for _, child := range n.Children {
		if child.Type != hierarchy.File {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			key, err := utils.RelKey(repoDir, child.Path)
			if err != nil {
				e.record(sum, op, child.Path, 0, err)
				return nil
			}
			size, err := e.upload(ctx, bucket, key, child.Path)
			e.record(sum, op, key, size, err)
			return nil
		})
	}
	_ = g.Wait()

	for _, child := range n.Children {
		if child.Type == hierarchy.Folder {
			e.localToRemote(ctx, op, child, repoDir, bucket, sum)
		}
	}
}

// putMarkers uploads a zero-length "<dir>/" object for every leaf folder without files.
func (e *Executor) putMarkers(ctx context.Context, op string, root *hierarchy.Node, repoDir, bucket string, sum *Summary) {
	for _, dir := range FindEmptyDirectories(root) {
		if ctx.Err() != nil {
			return
		}
		rel, err := utils.RelKey(repoDir, dir)
		if err != nil {
			e.record(sum, op, dir, 0, err)
			continue
		}
		key := rel + utils.KeySep
		e.record(sum, op, key, 0, e.putMarker(ctx, bucket, key))
	}
}

// download streams key into dest through a temp file and rename.
func (e *Executor) download(ctx context.Context, bucket, key, dest string) (int64, error) {
	body, err := e.store.GetObject(ctx, bucket, key)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := utils.WriteFileAtomic(dest, body)
	if err != nil {
		return n, errs.IO("download", key, err)
	}
	return n, nil
}

func (e *Executor) upload(ctx context.Context, bucket, key, localPath string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, errs.FromFS("open", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, errs.FromFS("stat", localPath, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("upload %s: is a directory", localPath)
	}

	err = e.store.PutObject(ctx, &objstore.PutObjectParams{
		Bucket:      bucket,
		Key:         key,
		Body:        f,
		Size:        info.Size(),
		ContentType: utils.DetectContentType(localPath),
	})
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (e *Executor) putMarker(ctx context.Context, bucket, key string) error {
	return e.store.PutObject(ctx, &objstore.PutObjectParams{
		Bucket: bucket,
		Key:    key,
		Size:   0,
	})
}
