package btree

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/internal/bufferpool"
	"colstore/internal/coltype"
	"colstore/internal/diskmanager"
	"colstore/internal/page"
)

func newTestIndex(t *testing.T, dtype coltype.DataType) *Index {
	t.Helper()
	disk := diskmanager.New(t.TempDir(), nil)
	t.Cleanup(func() { disk.Close() })
	pool := bufferpool.New(64, disk, logrus.NewEntry(logrus.New()))
	idx, err := Open("col.idx", dtype, pool, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	return idx
}

func TestInsertAndFindEqual(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	idx := newTestIndex(t, coltype.Int32)

	for i := int32(0); i < 300; i++ {
		require.NoError(idx.Insert(coltype.NewInt32(i), RecordID(i)))
	}

	recs, err := idx.FindEqual(coltype.NewInt32(150))
	require.NoError(err)
	assert.Equal([]RecordID{150}, recs)
}

func TestDuplicateKeysAllRetained(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	idx := newTestIndex(t, coltype.Int32)

	for i := 0; i < 5; i++ {
		require.NoError(idx.Insert(coltype.NewInt32(7), RecordID(i)))
	}
	require.NoError(idx.Insert(coltype.NewInt32(3), RecordID(100)))

	recs, err := idx.FindEqual(coltype.NewInt32(7))
	require.NoError(err)
	assert.ElementsMatch([]RecordID{0, 1, 2, 3, 4}, recs)
}

func TestFindRangeReturnsInclusiveSet(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	idx := newTestIndex(t, coltype.Int32)

	for i := int32(0); i < 50; i++ {
		require.NoError(idx.Insert(coltype.NewInt32(i), RecordID(i)))
	}

	recs, err := idx.FindRange(coltype.NewInt32(10), coltype.NewInt32(20))
	require.NoError(err)
	assert.ElementsMatch([]RecordID{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, recs)
}

// TestSplitCascadeProducesOrderedLeafChain exercises spec.md §8 scenario 5's
// intent (a force split cascade over a small effective node capacity) using
// the STRING key type, whose 256-byte cells reduce maxKeysFor to a small
// value — the same "reduce BTREE_ORDER for wide key types" mechanism a
// hypothetical BTREE_ORDER=4 configuration would exercise, without
// requiring the fixed on-disk Order constant to change.
func TestSplitCascadeProducesOrderedLeafChain(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	idx := newTestIndex(t, coltype.String)

	require.Less(idx.maxKeys, 20, "test assumes STRING keys yield a small per-node capacity")

	const n = 100
	for i := 0; i < n; i++ {
		key := coltype.NewString(paddedNum(i))
		require.NoError(idx.Insert(key, RecordID(i)))
	}

	keys, recs, err := idx.LeafKeys()
	require.NoError(err)
	require.Len(keys, n)
	require.Len(recs, n)

	for i := 1; i < len(keys); i++ {
		assert.LessOrEqual(keys[i-1].Compare(keys[i]), 0, "leaf chain must be non-decreasing")
	}

	for i := 0; i < n; i++ {
		found, err := idx.FindEqual(coltype.NewString(paddedNum(i)))
		require.NoError(err)
		assert.Contains(found, RecordID(i))
	}

	// A tree holding 100 keys with a small per-node capacity must have
	// split past a single leaf.
	rootNode, err := idx.loadNode(idx.root)
	require.NoError(err)
	assert.False(rootNode.isLeaf, "root should have split into an internal node")
}

func paddedNum(i int) string {
	digits := "0123456789"
	s := make([]byte, 4)
	for p := 3; p >= 0; p-- {
		s[p] = digits[i%10]
		i /= 10
	}
	return string(s)
}

func TestNodeOccupancyInvariant(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	idx := newTestIndex(t, coltype.Int32)

	for i := int32(0); i < 500; i++ {
		require.NoError(idx.Insert(coltype.NewInt32(i), RecordID(i)))
	}

	// Walk every node reachable from root via loadNode and check occupancy.
	visited := map[int64]bool{}
	var visit func(id int64) error
	visit = func(id int64) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		n, err := idx.loadNode(page.ID(id))
		if err != nil {
			return err
		}
		assert.LessOrEqual(len(n.keys), idx.maxKeys)
		if n.isLeaf {
			assert.Len(n.records, len(n.keys))
		} else {
			assert.Len(n.children, len(n.keys)+1)
			for _, c := range n.children {
				if err := visit(int64(c)); err != nil {
					return err
				}
			}
		}
		return nil
	}
	require.NoError(visit(int64(idx.root)))
}
