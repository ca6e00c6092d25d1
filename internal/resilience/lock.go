// Package resilience provides cross-process coordination for CLI and server
// processes that share one credential store.
package resilience

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultLockTimeout bounds how long a caller waits for another process's
// token refresh. It covers one full provider login.
const DefaultLockTimeout = 35 * time.Second

// retryInterval is how often TryLockContext polls.
const retryInterval = 10 * time.Millisecond

// Lock is an exclusive advisory file lock.
//
// Acquire fails open: if the lock is not obtained within the timeout the
// caller proceeds unlocked. A stuck peer (crashed process, NFS) must never
// block token refresh indefinitely; the worst case is one extra login.
type Lock struct {
	path    string
	timeout time.Duration
}

// NewLock creates a lock at path. A zero timeout uses DefaultLockTimeout.
func NewLock(path string, timeout time.Duration) *Lock {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Lock{path: path, timeout: timeout}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Acquire obtains the lock. The returned release func is never nil.
// acquired is false when the timeout expired and the caller runs unlocked.
func (l *Lock) Acquire(ctx context.Context) (release func(), acquired bool, err error) {
	noop := func() {}

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return noop, false, err
	}

	fl := flock.New(l.path)

	lockCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, retryInterval)
	if err != nil {
		// Caller cancellation is an error; our own deadline is fail-open.
		if ctx.Err() != nil {
			return noop, false, ctx.Err()
		}
		if errors.Is(lockCtx.Err(), context.DeadlineExceeded) {
			return noop, false, nil
		}
		return noop, false, err
	}
	if !locked {
		return noop, false, nil
	}

	return func() { _ = fl.Unlock() }, true, nil
}
