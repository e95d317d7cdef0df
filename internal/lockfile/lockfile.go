// Package lockfile provides advisory file locking for serializing
// read-modify-write cycles on shared files across processes.
package lockfile

import (
	"fmt"
	"os"
)

// Lock is a held advisory lock.
type Lock struct {
	f *os.File
}

// Acquire takes an exclusive advisory lock on path, creating the file if
// needed. It blocks until the lock is available.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := lockFileExclusive(f); err != nil {
		f.Close()
		return nil, err
	}
	return &Lock{f: f}, nil
}

// Release unlocks and closes the lock file.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := unlockFile(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
