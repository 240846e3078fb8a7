package jobs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLockSweep(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "anime.db")

	unlock, err := TryLockSweep(dbPath)
	require.NoError(t, err)

	_, err = TryLockSweep(dbPath)
	assert.ErrorIs(t, err, ErrSweepRunning)

	unlock()
	unlock, err = TryLockSweep(dbPath)
	require.NoError(t, err)
	unlock()
	assert.FileExists(t, SweepLockPath(dbPath))

	for _, path := range []string{"", ":memory:"} {
		first, err := TryLockSweep(path)
		require.NoError(t, err)
		second, err := TryLockSweep(path)
		require.NoError(t, err, "in-memory databases are never shared")
		first()
		second()
	}
}
