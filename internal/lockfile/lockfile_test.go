package lockfile

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	lock, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	// Re-acquire after release works.
	lock, err = Acquire(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	lock, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	assert.NoError(t, lock.Release())
}

func TestSerializesCriticalSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.lock")

	const goroutines = 8
	const increments = 10
	var counter atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				lock, err := Acquire(path)
				if !assert.NoError(t, err) {
					return
				}
				counter.Add(1)
				assert.NoError(t, lock.Release())
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*increments), counter.Load())
}
