package column

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/internal/bufferpool"
	"colstore/internal/coltype"
	"colstore/internal/dberr"
	"colstore/internal/diskmanager"
)

func newTestColumn(t *testing.T, dtype coltype.DataType) *Column {
	t.Helper()
	dir := t.TempDir()
	disk := diskmanager.New(dir, nil)
	t.Cleanup(func() { disk.Close() })
	pool := bufferpool.New(200, disk, logrus.NewEntry(logrus.New()))
	c, err := Open("v", dtype, filepath.Join(dir, "v"), pool, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	return c
}

// TestTenThousandInt32Column exercises spec.md §8 scenario 1.
func TestTenThousandInt32Column(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	c := newTestColumn(t, coltype.Int32)

	const n = 10000
	for i := int32(0); i < n; i++ {
		rec, err := c.Append(coltype.NewInt32(i))
		require.NoError(err)
		assert.EqualValues(i, rec)
	}
	assert.EqualValues(n, c.Size())

	found, err := c.Find(coltype.NewInt32(4242))
	require.NoError(err)
	assert.Equal([]int64{4242}, found)

	rangeFound, err := c.FindRange(coltype.NewInt32(10), coltype.NewInt32(20))
	require.NoError(err)
	want := make([]int64, 0, 11)
	for i := int64(10); i <= 20; i++ {
		want = append(want, i)
	}
	assert.ElementsMatch(want, rangeFound)

	sum, err := c.Sum()
	require.NoError(err)
	assert.Equal(float64(n)*float64(n-1)/2, sum)
}

func TestGetOutOfRange(t *testing.T) {
	require := require.New(t)
	c := newTestColumn(t, coltype.Int32)
	_, err := c.Append(coltype.NewInt32(1))
	require.NoError(err)

	_, err = c.Get(5)
	require.ErrorIs(err, dberr.ErrRecordOutOfRange)
}

func TestAppendRejectsWrongType(t *testing.T) {
	require := require.New(t)
	c := newTestColumn(t, coltype.Int32)
	_, err := c.Append(coltype.NewString("nope"))
	require.ErrorIs(err, dberr.ErrTypeMismatch)
}

func TestAvgOfEmptyColumnIsZero(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	c := newTestColumn(t, coltype.Float64)
	avg, err := c.Avg()
	require.NoError(err)
	assert.Zero(avg)
}

// TestCategoryModuloScanScenario exercises spec.md §8 scenario 4 against a
// value column addressed by a separate category column's index.
func TestCategoryModuloScanScenario(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := t.TempDir()
	disk := diskmanager.New(dir, nil)
	t.Cleanup(func() { disk.Close() })
	pool := bufferpool.New(300, disk, logrus.NewEntry(logrus.New()))
	log := logrus.NewEntry(logrus.New())

	category, err := Open("category", coltype.Int32, filepath.Join(dir, "category"), pool, log)
	require.NoError(err)
	value, err := Open("value", coltype.Float64, filepath.Join(dir, "value"), pool, log)
	require.NoError(err)

	const n = 100000
	for i := 0; i < n; i++ {
		_, err := category.Append(coltype.NewInt32(int32(i % 10)))
		require.NoError(err)
		_, err = value.Append(coltype.NewFloat64(1.5 * float64(i)))
		require.NoError(err)
	}

	recs, err := category.Find(coltype.NewInt32(5))
	require.NoError(err)
	assert.Len(recs, n/10)

	for _, r := range recs[:5] {
		v, err := value.Get(r)
		require.NoError(err)
		expected := 1.5 * float64(r)
		assert.Equal(expected, v.Float64())
	}
}

// TestReopenRecoversLength exercises spec.md §8 scenario 6: reopening a
// column recovers its row count and prior contents from disk.
func TestReopenRecoversLength(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := t.TempDir()
	basePath := filepath.Join(dir, "v")

	disk := diskmanager.New(dir, nil)
	pool := bufferpool.New(50, disk, logrus.NewEntry(logrus.New()))
	log := logrus.NewEntry(logrus.New())

	c, err := Open("v", coltype.Int32, basePath, pool, log)
	require.NoError(err)
	for i := int32(0); i < 25; i++ {
		_, err := c.Append(coltype.NewInt32(i))
		require.NoError(err)
	}
	require.NoError(pool.FlushAll())
	require.NoError(disk.Close())

	disk2 := diskmanager.New(dir, nil)
	t.Cleanup(func() { disk2.Close() })
	pool2 := bufferpool.New(50, disk2, logrus.NewEntry(logrus.New()))
	reopened, err := Open("v", coltype.Int32, basePath, pool2, log)
	require.NoError(err)

	assert.EqualValues(25, reopened.Size())
	v, err := reopened.Get(10)
	require.NoError(err)
	assert.EqualValues(10, v.Int32())

	found, err := reopened.Find(coltype.NewInt32(7))
	require.NoError(err)
	assert.Equal([]int64{7}, found)
}
