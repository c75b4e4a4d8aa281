package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "castcheck.pid")

	p, err := Acquire(path)
	require.NoError(t, err)
	pid, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, p.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireTakesOverStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castcheck.pid")
	// PIDs are far below this on every supported platform
	require.NoError(t, os.WriteFile(path, []byte("2147483000\n"), 0o644))

	p, err := Acquire(path)
	require.NoError(t, err)
	pid, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireRefusesLiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castcheck.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0o644))

	_, err := Acquire(path)
	assert.True(t, errors.Is(err, ErrRunning), "got %v", err)
}

func TestReleaseKeepsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castcheck.pid")
	p := &Pidfile{path: path}
	require.NoError(t, os.WriteFile(path, []byte("1"), 0o644))

	require.NoError(t, p.Release())
	_, err := os.Stat(path)
	assert.NoError(t, err)
}
