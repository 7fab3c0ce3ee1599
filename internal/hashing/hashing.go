// Package hashing computes SHA-256 content digests of local files and remote objects
// and decides whether a local file differs from its remote counterpart.
package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/bucketsync/internal/errs"
	"github.com/openmined/bucketsync/internal/objstore"
)

const defaultCacheSize = 4096

// fileKey identifies one version of a local file. A changed size or mtime
// means a new key, so stale digests are never served.
type fileKey struct {
	path  string
	size  int64
	mtime int64
}

type Provider struct {
	store objstore.Store
	cache *lru.Cache[fileKey, string]
}

type Option func(*options)

type options struct {
	cacheSize int
}

// WithCacheSize bounds the number of local digests kept. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

func NewProvider(store objstore.Store, opts ...Option) *Provider {
	o := &options{cacheSize: defaultCacheSize}
	for _, opt := range opts {
		opt(o)
	}

	p := &Provider{store: store}
	if o.cacheSize > 0 {
		// only fails for a non-positive size
		p.cache, _ = lru.New[fileKey, string](o.cacheSize)
	}
	return p
}

// HashReader consumes r and returns the lowercase hex SHA-256 of its bytes.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile digests the file at path.
func (p *Provider) HashFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errs.FromFS("hash file", path, err)
	}

	key := fileKey{path: path, size: info.Size(), mtime: info.ModTime().UnixNano()}
	if p.cache != nil {
		if digest, ok := p.cache.Get(key); ok {
			return digest, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", errs.FromFS("hash file", path, err)
	}
	defer f.Close()

	digest, err := HashReader(f)
	if err != nil {
		return "", errs.IO("hash file", path, err)
	}

	if p.cache != nil {
		p.cache.Add(key, digest)
	}
	return digest, nil
}

// HashObject streams a remote object into the digest.
func (p *Provider) HashObject(ctx context.Context, bucket, key string) (string, error) {
	body, err := p.store.GetObject(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	defer body.Close()

	digest, err := HashReader(body)
	if err != nil {
		return "", errs.IO("hash object", key, err)
	}
	return digest, nil
}

// IsModified reports whether the local file differs from the remote object.
// A missing local file counts as modified and no remote fetch is made.
// Hash errors are returned, never read as "unmodified".
func (p *Provider) IsModified(ctx context.Context, bucket, remoteKey, localPath string) (bool, error) {
	if _, err := os.Stat(localPath); err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, errs.FromFS("stat", localPath, err)
	}

	localDigest, err := p.HashFile(localPath)
	if err != nil {
		return false, err
	}

	remoteDigest, err := p.HashObject(ctx, bucket, remoteKey)
	if err != nil {
		return false, err
	}

	modified := localDigest != remoteDigest
	if modified {
		slog.Debug("content differs", "key", remoteKey, "local", localDigest[:12], "remote", remoteDigest[:12])
	}
	return modified, nil
}
