package status

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewCacheTTL(t *testing.T) {
	c := newViewCache(time.Minute)
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	var builds int
	build := func() (any, error) {
		builds++
		return builds, nil
	}

	v, err := c.getOrBuild("runs", build)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, _ = c.getOrBuild("runs", build)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	v, _ = c.getOrBuild("runs", build)
	assert.Equal(t, 2, v)

	c.clear()
	v, _ = c.getOrBuild("runs", build)
	assert.Equal(t, 3, v)
}

func TestViewCacheErrorsNotCached(t *testing.T) {
	c := newViewCache(time.Minute)
	_, err := c.getOrBuild("runs", func() (any, error) { return nil, errors.New("down") })
	require.Error(t, err)

	v, err := c.getOrBuild("runs", func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestViewCacheZeroTTL(t *testing.T) {
	c := newViewCache(0)
	var builds int
	for i := 0; i < 3; i++ {
		_, err := c.getOrBuild("runs", func() (any, error) { builds++; return builds, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 3, builds)
}

func TestViewCacheSharesConcurrentBuilds(t *testing.T) {
	c := newViewCache(time.Minute)
	var builds atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.getOrBuild("runs", func() (any, error) {
				builds.Add(1)
				<-release
				return "built", nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
}
