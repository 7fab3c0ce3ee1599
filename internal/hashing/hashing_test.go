package hashing

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openmined/bucketsync/internal/errs"
	"github.com/openmined/bucketsync/internal/objstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// emptySHA is the SHA-256 of zero bytes.
const emptySHA = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func newStore(t *testing.T, objects map[string]string) *objstore.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := objstore.NewMemoryStore()
	require.NoError(t, store.CreateContainer(ctx, "bucket"))
	for key, body := range objects {
		require.NoError(t, store.PutObject(ctx, &objstore.PutObjectParams{
			Bucket: "bucket",
			Key:    key,
			Body:   strings.NewReader(body),
			Size:   int64(len(body)),
		}))
	}
	return store
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestHashReader(t *testing.T) {
	digest, err := HashReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, emptySHA, digest)

	digest, err = HashReader(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", digest)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestHashReader_Error(t *testing.T) {
	_, err := HashReader(failingReader{})
	assert.Error(t, err)
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "abc")

	p := NewProvider(nil)
	digest, err := p.HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", digest)

	_, err = p.HashFile(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestHashFile_CacheTracksContentChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "one")

	p := NewProvider(nil)
	first, err := p.HashFile(path)
	require.NoError(t, err)

	writeFile(t, path, "two!")
	// force a distinct mtime even on coarse filesystems
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	second, err := p.HashFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestIsModified(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := newStore(t, map[string]string{"a.txt": "hello", "b.txt": "v1"})
	p := NewProvider(store)

	writeFile(t, filepath.Join(dir, "a.txt"), "hello")
	writeFile(t, filepath.Join(dir, "b.txt"), "v2")

	tests := []struct {
		name  string
		key   string
		local string
		want  bool
	}{
		{name: "identical bytes", key: "a.txt", local: "a.txt", want: false},
		{name: "different bytes", key: "b.txt", local: "b.txt", want: true},
		{name: "missing local file", key: "a.txt", local: "nope.txt", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.IsModified(ctx, "bucket", tt.key, filepath.Join(dir, tt.local))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsModified_RemoteErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")
	p := NewProvider(newStore(t, nil))

	_, err := p.IsModified(context.Background(), "bucket", "a.txt", filepath.Join(dir, "a.txt"))
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

type mockStore struct {
	objstore.Store
	mock.Mock
}

func (m *mockStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, key)
	if rc := args.Get(0); rc != nil {
		return rc.(io.ReadCloser), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestIsModified_MissingLocalSkipsRemote(t *testing.T) {
	store := &mockStore{}
	p := NewProvider(store)

	modified, err := p.IsModified(context.Background(), "bucket", "a.txt", filepath.Join(t.TempDir(), "a.txt"))
	require.NoError(t, err)
	assert.True(t, modified)
	store.AssertNotCalled(t, "GetObject", mock.Anything, mock.Anything, mock.Anything)
}

func TestIsModified_StreamFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	store := &mockStore{}
	store.On("GetObject", mock.Anything, "bucket", "a.txt").Return(io.NopCloser(failingReader{}), nil)
	p := NewProvider(store)

	_, err := p.IsModified(context.Background(), "bucket", "a.txt", filepath.Join(dir, "a.txt"))
	assert.ErrorIs(t, err, errs.ErrIO)
	store.AssertExpectations(t)
}
