// Package synclock provides the single-flight locks that serialize sync runs.
//
// A second caller waits for the holder instead of racing it. Waiting honours
// the caller's context, so a stuck sync shows up as a deadline error rather
// than a hang.
package synclock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// Locker is a context-aware mutex.
type Locker interface {
	// Lock blocks until the lock is held or ctx is done.
	Lock(ctx context.Context) error
	// Unlock releases a lock acquired by Lock.
	Unlock()
}

// Semaphore is an in-process binary semaphore.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore returns an unlocked semaphore.
func NewSemaphore() *Semaphore {
	return &Semaphore{ch: make(chan struct{}, 1)}
}

func (s *Semaphore) Lock(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Semaphore) Unlock() {
	select {
	case <-s.ch:
	default:
		panic("synclock: unlock of unlocked semaphore")
	}
}

// DefaultRetryDelay is how often a FileLock polls a lock held by another process.
const DefaultRetryDelay = 100 * time.Millisecond

// FileLock is an exclusive advisory lock on a file, shared across processes
// running against the same data directory.
type FileLock struct {
	lock       *flock.Flock
	release    func() error
	retryDelay time.Duration
	log        *zap.Logger
}

// NewFileLock returns a lock on path. The file is created on first Lock.
// Release failures are reported to log, which may be nil.
func NewFileLock(path string, log *zap.Logger) *FileLock {
	if log == nil {
		log = zap.NewNop()
	}
	l := &FileLock{lock: flock.New(path), retryDelay: DefaultRetryDelay, log: log}
	l.release = l.lock.Unlock
	return l
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.lock.Path() }

func (l *FileLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.lock.Path()), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	locked, err := l.lock.TryLockContext(ctx, l.retryDelay)
	if err != nil {
		return fmt.Errorf("acquire sync lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquire sync lock: %s is held", l.lock.Path())
	}
	return nil
}

// Unlock releases the file lock and logs a failure to do so.
func (l *FileLock) Unlock() {
	if err := l.release(); err != nil {
		l.log.Error("release sync lock", zap.String("path", l.lock.Path()), zap.Error(err))
	}
}

// chain acquires its lockers in order and releases them in reverse.
type chain []Locker

// Chain returns a Locker holding all of ls at once.
func Chain(ls ...Locker) Locker {
	return chain(ls)
}

func (c chain) Lock(ctx context.Context) error {
	for i, l := range c {
		if err := l.Lock(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				c[j].Unlock()
			}
			return err
		}
	}
	return nil
}

func (c chain) Unlock() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].Unlock()
	}
}
