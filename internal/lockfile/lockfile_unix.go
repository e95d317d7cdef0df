//go:build !windows

package lockfile

import (
	"fmt"
	"os"
	"syscall"
)

// lockFileExclusive acquires an exclusive blocking lock using flock(2).
func lockFileExclusive(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("acquiring file lock: %w", err)
	}
	return nil
}

// unlockFile releases the flock.
func unlockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
