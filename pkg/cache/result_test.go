package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmkol/tlesync/pkg/cache/mem_cache"
	"github.com/pmkol/tlesync/pkg/tle"
	"github.com/pmkol/tlesync/pkg/tle/tletest"
)

func TestKey(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 5)

	a := Key([]int{3, 1, 2}, start, end)
	b := Key([]int{1, 2, 3}, start, end)
	assert.Equal(t, a, b)
	assert.Len(t, a, len(keyPrefix)+40)

	assert.NotEqual(t, a, Key([]int{1, 2}, start, end))
	assert.NotEqual(t, a, Key([]int{1, 2, 3}, start.Add(time.Second), end))
	assert.NotEqual(t, a, Key([]int{1, 2, 3}, start, end.Add(time.Second)))
	assert.NotEqual(t, a, RangeKey(1, 3, start, end))

	// caller's slice is left untouched
	ids := []int{9, 4}
	Key(ids, start, end)
	assert.Equal(t, []int{9, 4}, ids)
}

func TestResultCache(t *testing.T) {
	mc := mem_cache.NewMemCache(64, 0)
	c := NewResultCache(mc)
	defer c.Close()
	require.True(t, c.Enabled())

	epoch := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	want := []tle.Record{tletest.Record(25544, epoch), tletest.Record(25544, epoch.Add(-time.Hour))}

	var got []tle.Record
	assert.False(t, c.Get("k", &got))

	require.NoError(t, c.Set("k", want, 50*time.Millisecond))
	require.True(t, c.Get("k", &got))
	assert.Equal(t, want, got)

	time.Sleep(100 * time.Millisecond)
	assert.False(t, c.Get("k", &got))
}

func TestResultCacheDisabled(t *testing.T) {
	for _, c := range []*ResultCache{nil, NewResultCache(nil)} {
		assert.False(t, c.Enabled())
		require.NoError(t, c.Set("k", []int{1}, time.Hour))
		var v []int
		assert.False(t, c.Get("k", &v))
		assert.NoError(t, c.Close())
	}
}

func TestResultCacheCorruptValue(t *testing.T) {
	mc := mem_cache.NewMemCache(64, 0)
	defer mc.Close()
	mc.Store("k", []byte("not snappy"), time.Now().Add(time.Hour))

	var v []int
	assert.False(t, NewResultCache(mc).Get("k", &v))
}
