// Package renderlock serializes external renderer invocations for a
// single artifact across processes.
//
// The lock lives entirely on the filesystem: a lock file whose content
// is the owning pid. The lock is advisory. A lock whose pid no longer
// names a live process is stale and recoverable; unparsable content is
// treated the same way, degrading the liveness check to "assume not
// running".
package renderlock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrHeld is returned by Acquire when a live process owns the lock.
var ErrHeld = errors.New("renderlock: held by a live process")

// Lock is a successfully acquired render lock. Release it exactly once
// on every exit path of the renderer invocation it guards.
type Lock struct {
	path     string
	released bool
}

// Acquire takes the lock at path for the calling process. Creation is
// exclusive, so two processes racing for a free lock cannot both win.
// A stale lock (dead or unreadable owner) is removed and acquisition
// retried.
func Acquire(path string) (*Lock, error) {
	for {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				if werr == nil {
					werr = cerr
				}
				return nil, fmt.Errorf("renderlock: write %s: %w", path, werr)
			}
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("renderlock: %w", err)
		}

		data, rerr := os.ReadFile(path)
		if rerr != nil {
			if errors.Is(rerr, fs.ErrNotExist) {
				// Released between our create attempt and the read.
				continue
			}
			return nil, fmt.Errorf("renderlock: %w", rerr)
		}

		pid, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		if perr == nil && alive(pid) {
			return nil, ErrHeld
		}

		// Stale or unparsable owner: reclaim and retry.
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("renderlock: %w", rmErr)
		}
	}
}

// Held reports whether path names a lock owned by a live process,
// without attempting acquisition.
func Held(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false
	}
	return alive(pid)
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release deletes the lock file. Releasing twice, or releasing a lock
// whose file is already gone, is a no-op.
func (l *Lock) Release() error {
	if l.released {
		return nil
	}
	l.released = true
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("renderlock: release %s: %w", l.path, err)
	}
	return nil
}

// alive probes pid existence with signal 0. EPERM means the process
// exists but belongs to another user, which still counts as alive.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
