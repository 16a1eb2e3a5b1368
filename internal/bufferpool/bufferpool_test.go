package bufferpool

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/internal/diskmanager"
	"colstore/internal/page"
)

func newTestPool(t *testing.T, capacity int) *Pool {
	t.Helper()
	disk := diskmanager.New(t.TempDir(), nil)
	t.Cleanup(func() { disk.Close() })
	return New(capacity, disk, logrus.NewEntry(logrus.New()))
}

func TestFetchPageMissReturnsZeroed(t *testing.T) {
	assert := assert.New(t)
	pool := newTestPool(t, 4)

	pg, err := pool.FetchPage("t/col.data", page.ID(0))
	assert.NoError(err)
	assert.Equal(1, pool.Size())
	for _, b := range pg.Data {
		assert.Zero(b)
	}
}

// TestEvictionKeepsLastFourOfAccessSequence exercises spec.md §8 scenario 3:
// with BUFFER_POOL_SIZE = 4, touching pages 0..9 across two files leaves
// only the last four touched resident, and any dirty evicted page is
// re-readable with the exact written bytes once evicted.
func TestEvictionKeepsLastFourOfAccessSequence(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	pool := newTestPool(t, 4)

	type touch struct {
		file string
		id   page.ID
	}
	var sequence []touch
	for i := page.ID(0); i < 5; i++ {
		sequence = append(sequence, touch{"a.data", i})
	}
	for i := page.ID(0); i < 5; i++ {
		sequence = append(sequence, touch{"b.data", i})
	}

	for _, tc := range sequence {
		pg, err := pool.FetchPage(tc.file, tc.id)
		require.NoError(err)
		pg.Data[0] = byte(tc.id) + 1 // mark distinguishably and dirty it
		pg.Dirty = true
	}

	assert.Equal(4, pool.Size())

	last4 := sequence[len(sequence)-4:]
	for _, tc := range last4 {
		key := Key{File: tc.file, ID: tc.id}
		_, resident := pool.pages[key]
		assert.True(resident, "expected %+v to remain resident", key)
	}

	evicted := sequence[:len(sequence)-4]
	for _, tc := range evicted {
		key := Key{File: tc.file, ID: tc.id}
		_, resident := pool.pages[key]
		assert.False(resident, "expected %+v to have been evicted", key)

		pg, err := pool.FetchPage(tc.file, tc.id)
		require.NoError(err)
		assert.Equal(byte(tc.id)+1, pg.Data[0], "evicted dirty page must round-trip through disk")
	}
}

func TestFlushAllClearsDirtyBits(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	pool := newTestPool(t, 8)

	for i := page.ID(0); i < 3; i++ {
		pg, err := pool.FetchPage("t/col.data", i)
		require.NoError(err)
		pg.Dirty = true
	}

	require.NoError(pool.FlushAll())

	for _, pg := range pool.pages {
		assert.False(pg.Dirty)
	}
}

func TestCapacityNeverExceededAfterFetch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	pool := newTestPool(t, 3)

	for i := page.ID(0); i < 50; i++ {
		_, err := pool.FetchPage("t/col.data", i)
		require.NoError(err)
		assert.LessOrEqual(pool.Size(), pool.Capacity())
	}
}
