package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortableRoot(t *testing.T) {
	root := t.TempDir()
	t.Setenv("MODELCORE_HOME", root)

	assert.Equal(t, filepath.Join(root, "config"), ConfigDir())
	assert.Equal(t, filepath.Join(root, "state"), StateDir())
	assert.Equal(t, filepath.Join(root, "run"), RuntimeDir())
}

func TestXDGDirectories(t *testing.T) {
	t.Setenv("MODELCORE_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")
	t.Setenv("XDG_RUNTIME_DIR", "")

	assert.Equal(t, "/xdg/config/modelcore", ConfigDir())
	assert.Equal(t, "/xdg/state/modelcore", StateDir())
	assert.Equal(t, "/xdg/state/modelcore", RuntimeDir())
}

func TestWatchPidFile(t *testing.T) {
	t.Setenv("MODELCORE_HOME", t.TempDir())

	assert.Equal(t, WatchPidFile("/srv/inbox"), WatchPidFile("/srv/inbox/"))
	assert.NotEqual(t, WatchPidFile("/srv/inbox"), WatchPidFile("/srv/outbox"))
	assert.Equal(t, RuntimeDir(), filepath.Dir(WatchPidFile("/srv/inbox")))
}
