package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/openmined/bucketsync/internal/hierarchy"
	"github.com/openmined/bucketsync/internal/utils"
)

// CloneRemote copies the remote tree root into repoDir. Existing local files are
// never overwritten, so running it again against an unchanged bucket is a no-op.
func (e *Executor) CloneRemote(ctx context.Context, root *hierarchy.Node, repoDir, bucket string) (*Summary, error) {
	start := time.Now()
	defer e.metrics.Observe(OpCloneRemote, start)

	sum := &Summary{}
	e.remoteToLocal(ctx, OpCloneRemote, root, repoDir, sum, func(ctx context.Context, n *hierarchy.Node, dest string) {
		if utils.PathExists(dest) {
			e.skipped(sum, OpCloneRemote)
			return
		}
		size, err := e.download(ctx, bucket, n.Path, dest)
		e.record(sum, OpCloneRemote, n.Path, size, err)
	})

	slog.Info("clone remote", "bucket", bucket, "dir", repoDir, "summary", sum.String(), "took", time.Since(start))
	return sum, ctx.Err()
}

// CloneLocal uploads the local tree rooted at repoDir. Leaf folders without files
// are stored as zero-length "<dir>/" markers first.
func (e *Executor) CloneLocal(ctx context.Context, root *hierarchy.Node, repoDir, bucket string) (*Summary, error) {
	start := time.Now()
	defer e.metrics.Observe(OpCloneLocal, start)

	sum := &Summary{}
	e.putMarkers(ctx, OpCloneLocal, root, repoDir, bucket, sum)
	e.localToRemote(ctx, OpCloneLocal, root, repoDir, bucket, sum)

	slog.Info("clone local", "bucket", bucket, "dir", repoDir, "summary", sum.String(), "took", time.Since(start))
	return sum, ctx.Err()
}
