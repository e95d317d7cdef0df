//go:build windows

package lockfile

import "os"

// Windows opens the lock file without sharing, which already gives mutual
// exclusion between processes; no separate flock step is needed.
func lockFileExclusive(f *os.File) error {
	return nil
}

func unlockFile(f *os.File) error {
	return nil
}
