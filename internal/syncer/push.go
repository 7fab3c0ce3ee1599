package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openmined/bucketsync/internal/diff"
	"github.com/openmined/bucketsync/internal/hierarchy"
	"github.com/openmined/bucketsync/internal/objstore"
	"github.com/openmined/bucketsync/internal/utils"
)

// PushSelected applies the part of result picked by sel to the bucket. The three
// categories run independently and concurrently; a failing item is recorded and
// the rest continue.
func (e *Executor) PushSelected(ctx context.Context, result diff.Result, sel Selection, repoDir, bucket string) (*Summary, error) {
	start := time.Now()
	defer e.metrics.Observe("push", start)

	picked, err := sel.Apply(result)
	if err != nil {
		return nil, err
	}

	var stored *storedKeys
	if len(picked.ModifiedFiles) > 0 || len(picked.DeletedFiles) > 0 {
		if stored, err = e.listStoredKeys(ctx, bucket); err != nil {
			return nil, err
		}
	}

	var (
		wg                          sync.WaitGroup
		newSum, modifiedSum, delSum Summary
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if len(picked.NewFiles) > 0 {
			e.pushNew(ctx, picked.NewFiles, repoDir, bucket, &newSum)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if len(picked.ModifiedFiles) > 0 {
			e.pushModified(ctx, picked.ModifiedFiles, repoDir, bucket, stored, &modifiedSum)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if len(picked.DeletedFiles) > 0 {
			e.pushDeleted(ctx, picked.DeletedFiles, bucket, stored, &delSum)
		}
	}()

	wg.Wait()

	sum := &Summary{}
	sum.Merge(&newSum)
	sum.Merge(&modifiedSum)
	sum.Merge(&delSum)

	slog.Info("push", "bucket", bucket,
		"new", len(picked.NewFiles),
		"modified", len(picked.ModifiedFiles),
		"deleted", len(picked.DeletedFiles),
		"summary", sum.String(),
		"took", time.Since(start),
	)
	return sum, ctx.Err()
}

// pushNew uploads added files under their relative key. A folder entry uploads the
// folder's whole subtree, with markers for its empty leaves.
func (e *Executor) pushNew(ctx context.Context, entries []string, repoDir, bucket string, sum *Summary) {
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		localPath := utils.KeyToPath(repoDir, entry)
		if !utils.IsFolderEntry(entry) {
			size, err := e.upload(ctx, bucket, utils.NormKey(entry), localPath)
			e.record(sum, OpPushNew, entry, size, err)
			continue
		}

		subtree, err := hierarchy.NewBuilder(nil, nil).WithIgnore(e.ignore).BuildLocalSubtree(repoDir, localPath)
		if err != nil {
			e.record(sum, OpPushNew, entry, 0, err)
			continue
		}
		if len(subtree.Children) == 0 {
			key := utils.NormKey(utils.TrimFolderMarker(entry)) + utils.KeySep
			e.record(sum, OpPushNew, key, 0, e.putMarker(ctx, bucket, key))
			continue
		}
		e.putMarkers(ctx, OpPushNew, subtree, repoDir, bucket, sum)
		e.localToRemote(ctx, OpPushNew, subtree, repoDir, bucket, sum)
	}
}

// pushModified overwrites the object stored under the entry's own path, so files
// with the same name in different folders never collide.
func (e *Executor) pushModified(ctx context.Context, entries []string, repoDir, bucket string, stored *storedKeys, sum *Summary) {
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		keys := stored.file(entry)
		if len(keys) == 0 {
			// removed remotely since the diff
			keys = []string{utils.CanonicalKey(entry)}
		}
		localPath := utils.KeyToPath(repoDir, entry)
		for _, key := range keys {
			size, err := e.upload(ctx, bucket, key, localPath)
			e.record(sum, OpPushModify, entry, size, err)
		}
	}
}

// pushDeleted removes the stored objects behind each entry: a file's own keys, or
// everything inside a folder including its markers.
func (e *Executor) pushDeleted(ctx context.Context, entries []string, bucket string, stored *storedKeys, sum *Summary) {
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		keys := stored.file(entry)
		if utils.IsFolderEntry(entry) {
			keys = stored.folder(entry)
		}
		if len(keys) == 0 {
			e.skipped(sum, OpPushDelete)
			continue
		}
		for _, key := range keys {
			e.record(sum, OpPushDelete, key, 0, e.store.DeleteObject(ctx, bucket, key))
		}
	}
}

// storedKeys maps diff entries back to the keys the bucket holds. Entries are
// canonical, so "/c.txt" and "d//e.txt" diff as "c.txt" and "d/e.txt".
type storedKeys struct {
	files   map[string][]string
	objects []*objstore.ObjectInfo
}

func (e *Executor) listStoredKeys(ctx context.Context, bucket string) (*storedKeys, error) {
	objects, err := e.store.ListAllObjects(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("list bucket %s: %w", bucket, err)
	}
	stored := &storedKeys{files: make(map[string][]string), objects: objects}
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, utils.KeySep) {
			continue
		}
		key := utils.CanonicalKey(obj.Key)
		stored.files[key] = append(stored.files[key], obj.Key)
	}
	return stored, nil
}

func (s *storedKeys) file(entry string) []string {
	return s.files[utils.CanonicalKey(entry)]
}

func (s *storedKeys) folder(entry string) []string {
	dir := utils.CanonicalKey(entry)
	if dir == "" {
		return nil
	}
	var keys []string
	for _, obj := range s.objects {
		key := utils.CanonicalKey(obj.Key)
		isMarker := strings.HasSuffix(obj.Key, utils.KeySep)
		if strings.HasPrefix(key, dir+utils.KeySep) || (isMarker && key == dir) {
			keys = append(keys, obj.Key)
		}
	}
	return keys
}
