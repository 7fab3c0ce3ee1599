package objstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/openmined/bucketsync/internal/errs"
)

const defaultPageSize = 1000

type memObject struct {
	data        []byte
	contentType string
	etag        string
	modified    time.Time
}

// MemoryStore keeps buckets in process memory. Listings are assembled page by page
// so callers see the same pagination behaviour as a real bucket.
type MemoryStore struct {
	mu       sync.RWMutex
	buckets  map[string]map[string]*memObject
	pageSize int
}

type MemoryOption func(*MemoryStore)

// WithPageSize sets how many keys one simulated listing page returns.
func WithPageSize(n int) MemoryOption {
	return func(m *MemoryStore) {
		if n > 0 {
			m.pageSize = n
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		buckets:  make(map[string]map[string]*memObject),
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) ListAllObjects(ctx context.Context, bucket string) ([]*ObjectInfo, error) {
	var objects []*ObjectInfo
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, errs.IO("list", bucket, err)
		}
		page, next, err := m.listPage(bucket, token)
		if err != nil {
			return nil, err
		}
		objects = append(objects, page...)
		if next == "" {
			return objects, nil
		}
		token = next
	}
}

// listPage returns keys after token in lexical order, like ListObjectsV2's StartAfter.
func (m *MemoryStore) listPage(bucket, token string) ([]*ObjectInfo, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	objs, ok := m.buckets[bucket]
	if !ok {
		return nil, "", errs.NotFound("list", bucket, nil)
	}

	keys := make([]string, 0, len(objs))
	for k := range objs {
		if k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	next := ""
	if len(keys) > m.pageSize {
		keys = keys[:m.pageSize]
		next = keys[len(keys)-1]
	}

	page := make([]*ObjectInfo, 0, len(keys))
	for _, k := range keys {
		o := objs[k]
		page = append(page, &ObjectInfo{
			Key:          k,
			Size:         int64(len(o.data)),
			ETag:         o.etag,
			LastModified: o.modified,
		})
	}
	return page, next, nil
}

func (m *MemoryStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	objs, ok := m.buckets[bucket]
	if !ok {
		return nil, errs.NotFound("get", bucket, nil)
	}
	o, ok := objs[key]
	if !ok {
		return nil, errs.NotFound("get", key, nil)
	}
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

func (m *MemoryStore) PutObject(ctx context.Context, params *PutObjectParams) error {
	var data []byte
	if params.Body != nil {
		var err error
		data, err = io.ReadAll(params.Body)
		if err != nil {
			return errs.IO("put", params.Key, err)
		}
	}
	if params.Size > 0 && int64(len(data)) != params.Size {
		return errs.IO("put", params.Key, fmt.Errorf("size mismatch: declared %d, read %d", params.Size, len(data)))
	}

	sum := md5.Sum(data)

	m.mu.Lock()
	defer m.mu.Unlock()

	objs, ok := m.buckets[params.Bucket]
	if !ok {
		return errs.NotFound("put", params.Bucket, nil)
	}
	objs[params.Key] = &memObject{
		data:        data,
		contentType: params.ContentType,
		etag:        hex.EncodeToString(sum[:]),
		modified:    time.Now().UTC(),
	}
	return nil
}

// DeleteObject is a no-op for absent keys, matching S3.
func (m *MemoryStore) DeleteObject(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	objs, ok := m.buckets[bucket]
	if !ok {
		return errs.NotFound("delete", bucket, nil)
	}
	delete(objs, key)
	return nil
}

func (m *MemoryStore) CreateContainer(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[bucket]; ok {
		return errs.Conflict("create bucket", bucket, fmt.Errorf("bucket already exists"))
	}
	m.buckets[bucket] = make(map[string]*memObject)
	return nil
}

func (m *MemoryStore) DeleteContainer(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[bucket]; !ok {
		return errs.NotFound("delete bucket", bucket, nil)
	}
	delete(m.buckets, bucket)
	return nil
}

// ContentType returns the stored content type of key, for tests and diagnostics.
func (m *MemoryStore) ContentType(bucket, key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if o, ok := m.buckets[bucket][key]; ok {
		return o.contentType
	}
	return ""
}

var _ Store = (*MemoryStore)(nil)
