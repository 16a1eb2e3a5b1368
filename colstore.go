// Package colstore is a disk-backed columnar storage engine: a Database is
// a directory of Tables, each a named list of typed, append-only Columns
// indexed by a persistent B+-tree, all sharing one process-wide LRU buffer
// pool over a shared disk manager.
//
// Grounded on the teacher's root-level wiring in main.go (disk manager,
// buffer pool, and catalog constructed once and threaded through every
// higher layer) and on Revolution1-sidb's db.go for the Options/DefaultOptions
// functional-configuration shape and the per-instance logrus.Entry it
// threads through every subsystem.
package colstore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"colstore/internal/bufferpool"
	"colstore/internal/coltype"
	"colstore/internal/dberr"
	"colstore/internal/diskmanager"
	"colstore/internal/table"
)

// DefaultBufferPoolCapacity is BUFFER_POOL_SIZE from spec.md §3.
const DefaultBufferPoolCapacity = 1000

// Options configures a Database. The zero value is not valid; build one
// with DefaultOptions and override individual fields.
type Options struct {
	// BufferPoolCapacity is the maximum number of resident pages shared
	// across every table and column in the database.
	BufferPoolCapacity int
	// Logger receives structured log entries. If nil, Open uses logrus's
	// standard logger.
	Logger *logrus.Logger
}

// DefaultOptions returns the engine's default configuration: a
// DefaultBufferPoolCapacity-page buffer pool and logrus's standard logger.
func DefaultOptions() *Options {
	return &Options{
		BufferPoolCapacity: DefaultBufferPoolCapacity,
		Logger:             logrus.StandardLogger(),
	}
}

// Database is a directory of named Tables backed by one shared disk
// manager and buffer pool.
type Database struct {
	root string
	id   string
	log  *logrus.Entry
	disk *diskmanager.Manager
	pool *bufferpool.Pool

	mu     sync.Mutex
	tables map[string]*table.Table
	closed bool
}

// Open opens (or initializes) the database rooted at dir. Every table
// previously created under dir must be re-attached with LoadTable on the
// returned Database before use — a fresh Database has no tables loaded,
// matching the teacher's catalog being populated explicitly by its
// caller rather than by scanning the directory.
func Open(dir string, opts *Options) (*Database, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.BufferPoolCapacity <= 0 {
		opts.BufferPoolCapacity = DefaultBufferPoolCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "colstore: open %q", dir)
	}

	id := uuid.NewString()
	entry := logger.WithField("db_id", id)

	disk := diskmanager.New(dir, entry)
	pool := bufferpool.New(opts.BufferPoolCapacity, disk, entry)

	entry.WithField("root", dir).Info("database opened")

	return &Database{
		root:   dir,
		id:     id,
		log:    entry,
		disk:   disk,
		pool:   pool,
		tables: make(map[string]*table.Table),
	}, nil
}

// ID returns this Database instance's correlation id, attached to every
// log line it and its tables/columns emit.
func (db *Database) ID() string { return db.id }

// CreateTable declares a new, empty table named name.
func (db *Database) CreateTable(name string) (*table.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, dberr.ErrClosed
	}
	if _, exists := db.tables[name]; exists {
		return nil, errors.Wrapf(dberr.ErrTableExists, "database %q: table %q", db.root, name)
	}

	dir := filepath.Join(db.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "colstore: create table %q", name)
	}

	t := table.Open(name, name, db.pool, db.log)
	db.tables[name] = t
	db.log.WithField("table", name).Info("table created")
	return t, nil
}

// GetTable returns the named table, or ErrTableNotFound.
func (db *Database) GetTable(name string) (*table.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, dberr.ErrClosed
	}
	t, ok := db.tables[name]
	if !ok {
		return nil, errors.Wrapf(dberr.ErrTableNotFound, "database %q: table %q", db.root, name)
	}
	return t, nil
}

// TableNames returns the names of every table attached to this Database
// instance (created via CreateTable, or re-attached via LoadTable).
func (db *Database) TableNames() []string {
	db.mu.Lock()
	defer db.mu.Unlock()

	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	return names
}

// LoadTable re-attaches a table that was created in a prior process, given
// its name and its column schema in declaration order. This mirrors the
// C++ original's lack of a persisted catalog (spec.md §9, "the source's
// metadata ... is not persisted"): the caller supplies the schema once per
// process, and every column recovers its own row count from its index.
func (db *Database) LoadTable(name string, schema []ColumnSchema) (*table.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, dberr.ErrClosed
	}
	if _, exists := db.tables[name]; exists {
		return nil, errors.Wrapf(dberr.ErrTableExists, "database %q: table %q", db.root, name)
	}

	t := table.Open(name, name, db.pool, db.log)
	for _, col := range schema {
		if _, err := t.LoadColumn(col.Name, col.Type); err != nil {
			return nil, errors.Wrapf(err, "database %q: load table %q", db.root, name)
		}
	}

	db.tables[name] = t
	db.log.WithField("table", name).Info("table loaded")
	return t, nil
}

// ColumnSchema names one column of a table being re-attached via LoadTable.
type ColumnSchema struct {
	Name string
	Type coltype.DataType
}

// FlushAll writes back every dirty resident page across every file this
// database has touched.
func (db *Database) FlushAll() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return dberr.ErrClosed
	}
	return db.pool.FlushAll()
}

// Close flushes every dirty page and closes every open file handle. The
// Database must not be used afterward.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	if err := db.pool.FlushAll(); err != nil {
		return errors.Wrapf(err, "colstore: close %q", db.root)
	}
	if err := db.disk.Close(); err != nil {
		return errors.Wrapf(err, "colstore: close %q", db.root)
	}
	db.closed = true
	db.log.Info("database closed")
	return nil
}
