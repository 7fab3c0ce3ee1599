package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/openmined/bucketsync/internal/hierarchy"
)

// Pull brings repoDir up to date with the remote tree root. A file is fetched only
// when its local copy is absent or its digest differs; current files are skipped.
func (e *Executor) Pull(ctx context.Context, root *hierarchy.Node, repoDir, bucket string) (*Summary, error) {
	start := time.Now()
	defer e.metrics.Observe(OpPull, start)

	sum := &Summary{}
	e.remoteToLocal(ctx, OpPull, root, repoDir, sum, func(ctx context.Context, n *hierarchy.Node, dest string) {
		modified, err := e.hasher.IsModified(ctx, bucket, n.Path, dest)
		if err != nil {
			e.record(sum, OpPull, n.Path, 0, err)
			return
		}
		if !modified {
			e.skipped(sum, OpPull)
			return
		}
		size, err := e.download(ctx, bucket, n.Path, dest)
		e.record(sum, OpPull, n.Path, size, err)
	})

	slog.Info("pull", "bucket", bucket, "dir", repoDir, "summary", sum.String(), "took", time.Since(start))
	return sum, ctx.Err()
}
