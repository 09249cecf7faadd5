// Package lock implements PID-file based mutual exclusion between daemon
// instances sharing a repository root.
//
// torua's cmd/node registers with the coordinator and calls its package
// -level logFatal on persistent, unrecoverable failure; lock's Acquire
// follows the same "fail fast and loud" idiom for the one startup
// condition cortex cannot proceed past — another live daemon already
// holding the root.
package lock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrHeld is returned by Acquire when the lock file names a process
// that is still alive.
var ErrHeld = fmt.Errorf("lock: held by a live process")

// Lock represents an acquired PID-file lock. Release removes the file.
type Lock struct {
	path string
}

// Acquire attempts to take the PID-file lock at path. If the file exists
// and names a process that is still alive, it returns ErrHeld. Otherwise
// it overwrites the file with the current PID and returns a Lock.
func Acquire(path string) (*Lock, error) {
	if pid, err := readPID(path); err == nil && alive(pid) {
		return nil, fmt.Errorf("%w: pid %d", ErrHeld, pid)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, fmt.Errorf("lock: write %s: %w", path, err)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file. Safe to call on a clean shutdown or
// deferred from process exit.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("lock: malformed pid file %s: %w", path, err)
	}
	return pid, nil
}

// alive reports whether pid names a running process, using the
// signal-0 probe: sending signal 0 performs error checking without
// actually delivering a signal.
func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
