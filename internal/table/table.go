// Package table implements Table: a named, ordered list of equal-length
// Columns, per spec.md §3 "Table" and the Table operations of §6.
//
// Grounded on the teacher's types.TableSchema/ColumnDef pair for the shape
// of a table's declaration, and on storage_engine's per-table directory
// convention (<table>/<column>.data, <table>/<column>.idx) for layout.
package table

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"colstore/internal/bufferpool"
	"colstore/internal/coltype"
	"colstore/internal/column"
	"colstore/internal/dberr"
)

// Table is a named list of columns, all sharing the same row count.
type Table struct {
	name    string
	dir     string
	pool    *bufferpool.Pool
	log     *logrus.Entry
	columns []*column.Column
	byName  map[string]*column.Column
}

// Open loads (or initializes) the table named name, rooted at dir: the
// table's directory as a path relative to the disk manager's root
// (typically just <name>).
func Open(name, dir string, pool *bufferpool.Pool, log *logrus.Entry) *Table {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Table{
		name:   name,
		dir:    dir,
		pool:   pool,
		log:    log.WithField("table", name),
		byName: make(map[string]*column.Column),
	}
}

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

// RowCount returns the number of rows: the shared length of every column,
// or 0 if the table has no columns.
func (t *Table) RowCount() int64 {
	if len(t.columns) == 0 {
		return 0
	}
	return t.columns[0].Size()
}

// ColumnNames returns column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name()
	}
	return names
}

// GetColumn returns the named column, or ErrColumnNotFound.
func (t *Table) GetColumn(name string) (*column.Column, error) {
	c, ok := t.byName[name]
	if !ok {
		return nil, errors.Wrapf(dberr.ErrColumnNotFound, "table %q: column %q", t.name, name)
	}
	return c, nil
}

// AddColumn declares a new column of type t. If the table already has
// rows, every existing row is backfilled with t's default value (spec.md
// §3, confirmed against original_source/DatabaseApp.cpp's Table::addColumn).
func (t *Table) AddColumn(name string, dtype coltype.DataType) (*column.Column, error) {
	if _, exists := t.byName[name]; exists {
		return nil, errors.Wrapf(dberr.ErrColumnExists, "table %q: column %q", t.name, name)
	}

	basePath := filepath.Join(t.dir, name)
	c, err := column.Open(name, dtype, basePath, t.pool, t.log)
	if err != nil {
		return nil, errors.Wrapf(err, "table %q: add column %q", t.name, name)
	}

	backfill := t.RowCount()
	for i := int64(0); i < backfill; i++ {
		if _, err := c.Append(dtype.Default()); err != nil {
			return nil, errors.Wrapf(err, "table %q: backfill column %q", t.name, name)
		}
	}

	t.columns = append(t.columns, c)
	t.byName[name] = c
	return c, nil
}

// LoadColumn re-attaches an already-declared column on reopen, without
// backfilling (the on-disk column already holds the table's row count).
func (t *Table) LoadColumn(name string, dtype coltype.DataType) (*column.Column, error) {
	if _, exists := t.byName[name]; exists {
		return nil, errors.Wrapf(dberr.ErrColumnExists, "table %q: column %q", t.name, name)
	}
	basePath := filepath.Join(t.dir, name)
	c, err := column.Open(name, dtype, basePath, t.pool, t.log)
	if err != nil {
		return nil, errors.Wrapf(err, "table %q: load column %q", t.name, name)
	}
	t.columns = append(t.columns, c)
	t.byName[name] = c
	return c, nil
}

// InsertRow appends one row: for each declared column in declaration
// order, the supplied value (values[name]) or the column's type default
// if absent (spec.md §6 "Row insert semantics").
func (t *Table) InsertRow(values map[string]coltype.Value) error {
	row := make([]coltype.Value, len(t.columns))
	for i, c := range t.columns {
		v, ok := values[c.Name()]
		if !ok {
			v = c.Type().Default()
		}
		if err := coltype.CheckType(c.Type(), v); err != nil {
			return errors.Wrapf(err, "table %q: column %q", t.name, c.Name())
		}
		row[i] = v
	}
	for i, c := range t.columns {
		if _, err := c.Append(row[i]); err != nil {
			return errors.Wrapf(err, "table %q: insert row", t.name)
		}
	}
	return nil
}

// BulkInsert inserts every row in rows, flushing every 1000 rows (spec.md
// §6 "bulk_insert is equivalent to N row inserts plus a flush_all() every
// 1000 rows"). flushAll is supplied by the caller (Database.FlushAll) so
// this package does not need to know about the disk manager.
func (t *Table) BulkInsert(rows []map[string]coltype.Value, flushAll func() error) error {
	const flushEvery = 1000
	for i, row := range rows {
		if err := t.InsertRow(row); err != nil {
			return err
		}
		if (i+1)%flushEvery == 0 {
			if err := flushAll(); err != nil {
				return errors.Wrapf(err, "table %q: bulk insert flush at row %d", t.name, i+1)
			}
		}
	}
	return nil
}
