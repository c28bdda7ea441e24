// Package runlock prevents that multiple stagepromote processes promote
// pull requests of the same repository at the same time.
package runlock

import (
	"fmt"

	"github.com/gofrs/flock"
)

// Lock is an acquired run lock.
type Lock struct {
	flock *flock.Flock
}

// TryAcquire tries to acquire an exclusive lock on the file at path.
// The file is created if it does not exist.
// If the lock is held by another process, nil and no error is returned.
func TryAcquire(path string) (*Lock, error) {
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s failed: %w", path, err)
	}

	if !locked {
		return nil, nil
	}

	return &Lock{flock: fl}, nil
}

// Path returns the path of the lock file.
func (l *Lock) Path() string {
	return l.flock.Path()
}

// Release releases the lock.
func (l *Lock) Release() error {
	return l.flock.Unlock()
}
