// Package dirlock serializes operations that depend on the process working
// directory. The working directory is process-global state, so concurrent
// workers must not interleave chdir calls.
package dirlock

import (
	"fmt"
	"os"
	"sync"
)

// Lock is a process-wide mutual exclusion guard for working-directory
// changes. The zero value is ready to use; all workers must share one Lock.
type Lock struct {
	mu sync.Mutex
}

// InDir runs fn with the working directory set to dir, holding the lock for
// the duration. The previous working directory is restored on every exit
// path before the lock is released. Not suitable for long-running fns: the
// whole process serializes on the lock.
func (l *Lock) InDir(dir string, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to record working directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("failed to enter %s: %w", dir, err)
	}
	defer func() {
		// Restoring the previous directory must not be skipped: the next
		// holder assumes an unchanged baseline.
		_ = os.Chdir(cwd)
	}()
	return fn()
}
