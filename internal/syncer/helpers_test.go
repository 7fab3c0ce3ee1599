package syncer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/openmined/bucketsync/internal/hashing"
	"github.com/openmined/bucketsync/internal/hierarchy"
	"github.com/openmined/bucketsync/internal/objstore"
	"github.com/stretchr/testify/require"
)

const bucket = "bucket"

// countingStore counts reads so tests can tell hashing from downloading.
type countingStore struct {
	*objstore.MemoryStore
	gets atomic.Int64
	puts atomic.Int64
}

func (c *countingStore) GetObject(ctx context.Context, b, key string) (io.ReadCloser, error) {
	c.gets.Add(1)
	return c.MemoryStore.GetObject(ctx, b, key)
}

func (c *countingStore) PutObject(ctx context.Context, p *objstore.PutObjectParams) error {
	c.puts.Add(1)
	return c.MemoryStore.PutObject(ctx, p)
}

func newStore(t *testing.T, objects map[string]string) *countingStore {
	t.Helper()
	ctx := context.Background()
	mem := objstore.NewMemoryStore()
	require.NoError(t, mem.CreateContainer(ctx, bucket))
	for key, body := range objects {
		require.NoError(t, mem.PutObject(ctx, &objstore.PutObjectParams{
			Bucket: bucket, Key: key, Body: strings.NewReader(body), Size: int64(len(body)),
		}))
	}
	return &countingStore{MemoryStore: mem}
}

func newExecutor(store objstore.Store) *Executor {
	return NewExecutor(store, hashing.NewProvider(store), WithWorkers(3))
}

func writeTree(t *testing.T, root string, files map[string]string, dirs ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(root, 0o755))
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0o755))
	}
}

func readObject(t *testing.T, store objstore.Store, key string) string {
	t.Helper()
	rc, err := store.GetObject(context.Background(), bucket, key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func listKeys(t *testing.T, store objstore.Store) []string {
	t.Helper()
	objects, err := store.ListAllObjects(context.Background(), bucket)
	require.NoError(t, err)
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	return keys
}

func remoteTree(t *testing.T, store objstore.Store) *hierarchy.Node {
	t.Helper()
	root, err := hierarchy.NewBuilder(store, nil).BuildRemote(context.Background(), bucket)
	require.NoError(t, err)
	return root
}

func localTree(t *testing.T, dir string) *hierarchy.Node {
	t.Helper()
	root, err := hierarchy.NewBuilder(nil, nil).BuildLocal(dir)
	require.NoError(t, err)
	return root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
