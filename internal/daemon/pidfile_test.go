package daemon

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPIDFile(t *testing.T) *PIDFile {
	t.Helper()
	return NewPIDFile(filepath.Join(t.TempDir(), "run", "eightd-serve.pid"))
}

func TestPIDFile_WriteAndRead(t *testing.T) {
	pf := newPIDFile(t)

	require.NoError(t, pf.WritePID(12345), "should create the parent directory")

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	pf := newPIDFile(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(pf.Path), 0o755))
	require.NoError(t, os.WriteFile(pf.Path, []byte("not-a-number\n"), 0o644))

	_, err := pf.Read()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID file content")
}

func TestPIDFile_Acquire(t *testing.T) {
	pf := newPIDFile(t)

	require.NoError(t, pf.Acquire(os.Getpid()))
	pid, running := pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	// Re-acquiring for the same PID is allowed.
	require.NoError(t, pf.Acquire(os.Getpid()))

	// Another PID is refused while this process is alive.
	err := pf.Acquire(999999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestPIDFile_Acquire_ReplacesStale(t *testing.T) {
	pf := newPIDFile(t)
	require.NoError(t, pf.WritePID(999999))

	require.NoError(t, pf.Acquire(os.Getpid()))
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Release(t *testing.T) {
	pf := newPIDFile(t)
	require.NoError(t, pf.WritePID(1))

	require.NoError(t, pf.Release())
	_, err := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, pf.Release(), "missing file is fine")
}

func TestPIDFile_IsRunning(t *testing.T) {
	pf := newPIDFile(t)

	pid, running := pf.IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running, "no file")

	require.NoError(t, pf.WritePID(999999))
	pid, running = pf.IsRunning()
	assert.Equal(t, 999999, pid)
	assert.False(t, running, "dead process")
}

func TestPIDFile_Signal_NoFile(t *testing.T) {
	pf := newPIDFile(t)

	err := pf.Signal(syscall.Signal(0))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read PID file")
}

func TestPIDFile_Stop_NotRunning(t *testing.T) {
	pf := newPIDFile(t)
	require.NoError(t, pf.WritePID(999999))

	_, err := pf.Stop(syscall.SIGTERM, syscall.SIGKILL, time.Second)
	assert.ErrorIs(t, err, ErrNotRunning)

	_, statErr := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(statErr), "stale file is cleaned up")
}
