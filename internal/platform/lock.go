package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is an advisory file lock used both as the static registry's
// creation-in-progress marker (spec §4.2) and as a node's monitor token
// (spec §4.1, §4.6): a process holds the lock for as long as it is
// alive, and a TryLock from another process succeeding is proof the
// owner is gone.
type Lock struct {
	fl   *flock.Flock
	path string
}

// AcquireLock creates (if needed) and exclusively locks the file at
// path, blocking the caller's process for as long as the lock is held.
// The lock is released by Close.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("platform: mkdir for lock %s: %w", path, err)
	}
	fl := flock.New(path)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("platform: lock %s: %w", path, err)
	}
	return &Lock{fl: fl, path: path}, nil
}

// TryAcquireLock attempts a non-blocking lock, returning ok=false (no
// error) if another process already holds it.
func TryAcquireLock(path string) (lock *Lock, ok bool, err error) {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("platform: try-lock %s: %w", path, err)
	}
	if !locked {
		return nil, false, nil
	}
	return &Lock{fl: fl, path: path}, true, nil
}

// ProbeDead attempts a non-blocking lock on path purely to test whether
// its owner is still alive (spec §4.6 "acquire an advisory lock on its
// token; success confirms death"). The lock, if acquired, is released
// immediately.
func ProbeDead(path string) (dead bool, err error) {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("platform: probe %s: %w", path, err)
	}
	if !locked {
		return false, nil
	}
	_ = fl.Unlock()
	return true, nil
}

// Close releases the lock. The backing file is left in place; callers
// that own the resource's lifecycle remove it separately.
func (l *Lock) Close() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("platform: unlock %s: %w", l.path, err)
	}
	return nil
}

// Path returns the backing file path of the lock.
func (l *Lock) Path() string { return l.path }
