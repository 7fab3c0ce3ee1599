package repo

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/openmined/bucketsync/internal/utils"
)

var ErrRepoBusy = errors.New("repository busy: another operation is running")

// LockManager serializes operations per repository. Inside the process a mutex per
// repository is held; across processes a lock file under dir guards the same id.
type LockManager struct {
	dir   string
	mu    sync.Mutex
	repos map[string]*sync.Mutex
}

// NewLockManager keeps lock files under dir. An empty dir disables file locks.
func NewLockManager(dir string) *LockManager {
	return &LockManager{
		dir:   dir,
		repos: make(map[string]*sync.Mutex),
	}
}

// TryLock acquires the lock for id or fails fast with ErrRepoBusy.
// The returned func releases it.
func (m *LockManager) TryLock(id string) (func(), error) {
	m.mu.Lock()
	mu, ok := m.repos[id]
	if !ok {
		mu = &sync.Mutex{}
		m.repos[id] = mu
	}
	m.mu.Unlock()

	if !mu.TryLock() {
		return nil, ErrRepoBusy
	}
	if m.dir == "" {
		return mu.Unlock, nil
	}

	if err := utils.EnsureDir(m.dir); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("failed to create lock dir %s: %w", m.dir, err)
	}

	fl := flock.New(filepath.Join(m.dir, id+".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("failed to lock repository %s: %w", id, err)
	}
	if !locked {
		mu.Unlock()
		return nil, ErrRepoBusy
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("failed to release repository lock", "path", fl.Path(), "error", err)
		}
		mu.Unlock()
	}, nil
}
