package repos

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sha1n/relic-artifacts/internal/index"
)

// ErrLockTimeout indicates the repository lock was not acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timed out")

const (
	lockPollInterval    = 10 * time.Millisecond
	maxLockPollInterval = 250 * time.Millisecond
)

// RepositoryLock serializes scans of one repository across processes with flock(2).
// The kernel releases it when the holder exits or crashes. Every Acquire opens its
// own descriptor, so two locks on the same path also exclude each other in-process.
type RepositoryLock struct {
	path string
	file *os.File
}

// NewRepositoryLock returns the lock of repoID under <dataDir>/locks.
func NewRepositoryLock(dataDir, repoID string) *RepositoryLock {
	return &RepositoryLock{path: filepath.Join(dataDir, "locks", index.SanitizeID(repoID)+".lock")}
}

// Path returns the lock file path.
func (l *RepositoryLock) Path() string {
	return l.path
}

// Held reports whether this instance holds the lock.
func (l *RepositoryLock) Held() bool {
	return l.file != nil
}

// TryAcquire takes the lock if it is free. It returns false, without error, when
// another holder has it.
func (l *RepositoryLock) TryAcquire() (bool, error) {
	if l.file != nil {
		return true, nil
	}
	f, err := l.open()
	if err != nil {
		return false, err
	}
	ok, err := flock(f)
	if err != nil || !ok {
		_ = f.Close()
		return false, err
	}
	l.file = f
	return true, nil
}

// Acquire waits for the lock until timeout elapses or ctx is done.
func (l *RepositoryLock) Acquire(ctx context.Context, timeout time.Duration) error {
	if l.file != nil {
		return nil
	}
	f, err := l.open()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	interval := lockPollInterval
	for {
		ok, err := flock(f)
		if err != nil {
			_ = f.Close()
			return err
		}
		if ok {
			l.file = f
			return nil
		}
		if !time.Now().Before(deadline) {
			_ = f.Close()
			return fmt.Errorf("%w: %s", ErrLockTimeout, l.path)
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return ctx.Err()
		case <-time.After(min(interval, time.Until(deadline))):
			interval = min(interval*2, maxLockPollInterval)
		}
	}
}

// Release gives the lock up. Releasing a lock that is not held is a no-op.
func (l *RepositoryLock) Release() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil

	err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	closeErr := f.Close()
	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close failed: %w", closeErr)
	}
	return nil
}

func (l *RepositoryLock) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	return f, nil
}

// flock tries a non-blocking exclusive lock on f.
func flock(f *os.File) (bool, error) {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return false, nil
	}
	return false, fmt.Errorf("flock failed: %w", err)
}
