// Package pidfile keeps a single watcher per directory.
package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/grovetools/modelcore/errors"
)

// Acquire writes the current PID to path. It fails when the file names another
// live process; a stale file is replaced.
func Acquire(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create pid directory")
	}

	if pid, err := Read(path); err == nil {
		if pid != os.Getpid() && IsProcessAlive(pid) {
			return errors.New(errors.ErrCodeAlreadyWatching, "another watcher is running").
				WithDetail("pid", pid).
				WithDetail("pidfile", path)
		}
		_ = os.Remove(path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write pid file")
	}
	return nil
}

// Release removes the PID file if it still names the current process.
func Release(path string) error {
	pid, err := Read(path)
	if err != nil || pid != os.Getpid() {
		return nil
	}
	return os.Remove(path)
}

// Read returns the PID stored in path.
func Read(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(content)))
}

// IsProcessAlive reports whether a process with the given PID exists.
// Signal 0 checks for existence; EPERM means it exists under another user.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}
