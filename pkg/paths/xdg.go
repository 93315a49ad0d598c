// Package paths resolves the modelcore directories.
//
// Resolution order:
// 1. MODELCORE_HOME (portable root) → $MODELCORE_HOME/{config,state,run}
// 2. XDG env vars → $XDG_*_HOME/modelcore
// 3. Platform defaults → ~/.config/modelcore, ~/.local/state/modelcore
package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

const appName = "modelcore"

func home(sub, xdgVar string, fallback ...string) string {
	if root := os.Getenv("MODELCORE_HOME"); root != "" {
		return filepath.Join(root, sub)
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(append(append([]string{homeDir}, fallback...), appName)...)
	}
	return ""
}

// ConfigDir returns the directory of the global modelcore.yml.
func ConfigDir() string {
	return home("config", "XDG_CONFIG_HOME", ".config")
}

// StateDir returns the directory for runtime state that survives restarts.
func StateDir() string {
	return home("state", "XDG_STATE_HOME", ".local", "state")
}

// RuntimeDir returns the directory for pid files. It uses XDG_RUNTIME_DIR when
// available and falls back to StateDir.
func RuntimeDir() string {
	if root := os.Getenv("MODELCORE_HOME"); root != "" {
		return filepath.Join(root, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// WatchPidFile returns the pid file guarding a watcher of dir. Equal directories
// map to the same file.
func WatchPidFile(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return filepath.Join(RuntimeDir(), "watch-"+hex.EncodeToString(sum[:8])+".pid")
}
