package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProfiler records how many times Profile was invoked.
type countingProfiler struct {
	calls   int
	profile Profile
	err     error
}

func (c *countingProfiler) Profile(_ context.Context, path string) (Profile, error) {
	c.calls++
	if c.err != nil {
		return Profile{}, c.err
	}
	p := c.profile
	p.Path = path
	p.LastScanned = time.Now()
	return p, nil
}

func (c *countingProfiler) ReadDir(string) ([]Entry, error) {
	return []Entry{{Name: "child", IsDir: true}}, nil
}

func openTestCache(t *testing.T, inner Profiler, ttl time.Duration) *Cache {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	c, err := OpenCache(inner, "/data/projects", ttl)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCache_MissThenHit(t *testing.T) {
	inner := &countingProfiler{profile: Profile{TotalSizeBytes: 1234, FileCount: 10, DirCount: 2}}
	c := openTestCache(t, inner, time.Hour)

	first, err := c.Profile(context.Background(), "/data/projects/a")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, int64(1234), first.TotalSizeBytes)

	second, err := c.Profile(context.Background(), "/data/projects/a")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "fresh entry must not rescan")
	assert.Equal(t, first.TotalSizeBytes, second.TotalSizeBytes)
	assert.Equal(t, first.FileCount, second.FileCount)
	assert.Equal(t, first.DirCount, second.DirCount)
}

func TestCache_DistinctPaths(t *testing.T) {
	inner := &countingProfiler{profile: Profile{TotalSizeBytes: 1}}
	c := openTestCache(t, inner, time.Hour)

	_, err := c.Profile(context.Background(), "/data/projects/a")
	require.NoError(t, err)
	_, err = c.Profile(context.Background(), "/data/projects/b")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCache_ExpiredEntryRescans(t *testing.T) {
	inner := &countingProfiler{profile: Profile{TotalSizeBytes: 99}}
	c := openTestCache(t, inner, time.Hour)

	_, err := c.Profile(context.Background(), "/data/projects/a")
	require.NoError(t, err)

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = c.Profile(context.Background(), "/data/projects/a")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCache_InvalidateDropsEntries(t *testing.T) {
	inner := &countingProfiler{profile: Profile{TotalSizeBytes: 5}}
	c := openTestCache(t, inner, time.Hour)

	_, err := c.Profile(context.Background(), "/data/projects/a")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate())

	_, err = c.Profile(context.Background(), "/data/projects/a")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCache_InnerErrorNotCached(t *testing.T) {
	inner := &countingProfiler{err: assert.AnError}
	c := openTestCache(t, inner, time.Hour)

	_, err := c.Profile(context.Background(), "/data/projects/a")
	assert.Error(t, err)

	inner.err = nil
	inner.profile = Profile{TotalSizeBytes: 7}
	prof, err := c.Profile(context.Background(), "/data/projects/a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), prof.TotalSizeBytes)
}

func TestCache_ReadDirBypassesCache(t *testing.T) {
	inner := &countingProfiler{}
	c := openTestCache(t, inner, time.Hour)

	entries, err := c.ReadDir("/data/projects")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "child", entries[0].Name)
}

func TestCacheID_StableAndShort(t *testing.T) {
	a := cacheID("/data/projects")
	b := cacheID("/data/projects")
	other := cacheID("/data/other")

	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, other)
}
