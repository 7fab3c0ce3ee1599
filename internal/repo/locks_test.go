package repo

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockManager_InProcess(t *testing.T) {
	m := NewLockManager("")

	unlock, err := m.TryLock("repo-a")
	require.NoError(t, err)

	_, err = m.TryLock("repo-a")
	assert.ErrorIs(t, err, ErrRepoBusy)

	other, err := m.TryLock("repo-b")
	require.NoError(t, err)
	other()

	unlock()
	unlock, err = m.TryLock("repo-a")
	require.NoError(t, err)
	unlock()
}

func TestLockManager_FileLockAcrossManagers(t *testing.T) {
	dir := t.TempDir()
	first := NewLockManager(dir)
	second := NewLockManager(dir)

	unlock, err := first.TryLock("repo-a")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "repo-a.lock"))

	_, err = second.TryLock("repo-a")
	assert.ErrorIs(t, err, ErrRepoBusy)

	unlock()
	unlock, err = second.TryLock("repo-a")
	require.NoError(t, err)
	unlock()
}
