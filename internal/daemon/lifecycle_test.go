package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleManager(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	l := NewLifecycleManager(d)

	t.Run("start writes the PID file", func(t *testing.T) {
		require.NoError(t, l.Start())

		pid, err := l.GetPID()
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), pid)
		assert.True(t, l.IsRunning())
	})

	t.Run("stop removes the PID file", func(t *testing.T) {
		require.NoError(t, l.Stop())
		_, err := l.GetPID()
		assert.Error(t, err)
		assert.False(t, l.IsRunning())
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		assert.NoError(t, l.Stop())
	})

	t.Run("rejects a garbage PID file", func(t *testing.T) {
		path := filepath.Join(d.config.DataDir, "banter.pid")
		require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0644))
		_, err := l.GetPID()
		assert.Error(t, err)

		require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644))
		assert.True(t, l.IsRunning())
		require.NoError(t, l.Stop())
	})
}
