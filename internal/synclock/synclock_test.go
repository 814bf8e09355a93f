package synclock

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSemaphore_Serializes(t *testing.T) {
	s := NewSemaphore()
	var active, peak int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Lock(context.Background()))
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			s.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak)
}

func TestSemaphore_LockHonoursContext(t *testing.T) {
	s := NewSemaphore()
	require.NoError(t, s.Lock(context.Background()))
	defer s.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Lock(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestSemaphore_UnlockUnlockedPanics(t *testing.T) {
	assert.Panics(t, func() { NewSemaphore().Unlock() })
}

func TestFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "sync.lock")
	first := NewFileLock(path, nil)
	second := NewFileLock(path, nil)
	assert.Equal(t, path, first.Path())

	require.NoError(t, first.Lock(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	assert.Error(t, second.Lock(ctx))

	first.Unlock()
	require.NoError(t, second.Lock(context.Background()))
	second.Unlock()
}

func TestFileLock_UnlockFailureLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	path := filepath.Join(t.TempDir(), "sync.lock")
	l := NewFileLock(path, zap.New(core))
	require.NoError(t, l.Lock(context.Background()))

	release := l.release
	l.release = func() error {
		_ = release()
		return errors.New("bad file descriptor")
	}
	l.Unlock()

	entries := logs.FilterMessage("release sync lock").All()
	require.Len(t, entries, 1)
	assert.Equal(t, path, entries[0].ContextMap()["path"])
	assert.Equal(t, "bad file descriptor", entries[0].ContextMap()["error"])
}

type recordingLocker struct {
	name string
	log  *[]string
	fail error
}

func (r recordingLocker) Lock(context.Context) error {
	if r.fail != nil {
		return r.fail
	}
	*r.log = append(*r.log, "lock "+r.name)
	return nil
}

func (r recordingLocker) Unlock() { *r.log = append(*r.log, "unlock "+r.name) }

func TestChain(t *testing.T) {
	var log []string
	c := Chain(recordingLocker{name: "a", log: &log}, recordingLocker{name: "b", log: &log})
	require.NoError(t, c.Lock(context.Background()))
	c.Unlock()
	assert.Equal(t, []string{"lock a", "lock b", "unlock b", "unlock a"}, log)

	log = nil
	boom := errors.New("busy")
	c = Chain(recordingLocker{name: "a", log: &log}, recordingLocker{name: "b", log: &log, fail: boom})
	assert.ErrorIs(t, c.Lock(context.Background()), boom)
	assert.Equal(t, []string{"lock a", "unlock a"}, log)
}
