package diskmanager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/internal/page"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	return New(dir, logrus.NewEntry(logrus.New()))
}

func TestReadPageMissingReturnsZeroPage(t *testing.T) {
	assert := assert.New(t)
	m := newTestManager(t)
	defer m.Close()

	pg, err := m.ReadPage("employees/id.data", page.ID(3))
	assert.NoError(err)
	assert.Equal(page.ID(3), pg.ID)
	for _, b := range pg.Data {
		assert.Zero(b)
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	m := newTestManager(t)
	defer m.Close()

	pg := page.New(page.ID(2))
	copy(pg.Data[:], []byte("hello, disk manager"))

	require.NoError(m.WritePage("t/col.data", page.ID(2), pg))

	back, err := m.ReadPage("t/col.data", page.ID(2))
	require.NoError(err)
	assert.Equal(pg.Data, back.Data)
}

func TestFileSizePagesGrowsWithHighestWrittenPage(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	m := newTestManager(t)
	defer m.Close()

	n, err := m.FileSizePages("t/col.data")
	require.NoError(err)
	assert.Zero(n)

	require.NoError(m.WritePage("t/col.data", page.ID(4), page.New(page.ID(4))))
	n, err = m.FileSizePages("t/col.data")
	require.NoError(err)
	assert.EqualValues(5, n)
}

func TestFileMaterializesUnderRoot(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	dir := t.TempDir()
	m := New(dir, nil)
	defer m.Close()

	require.NoError(m.WritePage("employees/id.data", page.ID(0), page.New(0)))
	_, err := os.Stat(filepath.Join(dir, "employees", "id.data"))
	assert.NoError(err)
}
