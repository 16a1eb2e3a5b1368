// Package dberr defines the sentinel errors surfaced across colstore's
// storage stack. Callers compare against these with errors.Is; wrapped
// context is added with github.com/pkg/errors at the call site.
package dberr

import "github.com/pkg/errors"

var (
	// ErrTableExists is returned by Database.CreateTable for a duplicate name.
	ErrTableExists = errors.New("table already exists")
	// ErrTableNotFound is returned by Database.GetTable for an unknown name.
	ErrTableNotFound = errors.New("table not found")
	// ErrColumnExists is returned by Table.AddColumn for a duplicate name.
	ErrColumnExists = errors.New("column already exists")
	// ErrColumnNotFound is returned when a named column does not exist on a table.
	ErrColumnNotFound = errors.New("column not found")
	// ErrTypeMismatch is returned when a value's runtime type disagrees with
	// its column's DataType on insert. Index queries report
	// ErrKeyTypeMismatch instead.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrRecordOutOfRange is returned by Column.Get for record_id >= length.
	ErrRecordOutOfRange = errors.New("record id out of range")
	// ErrKeyTypeMismatch is returned when a B+-tree is queried with a Value
	// of a different DataType than the one it was built over.
	ErrKeyTypeMismatch = errors.New("index key type mismatch")
	// ErrNodeTooLarge is a fatal, per-operation error: a node's serialized
	// form would exceed PAGE_SIZE. The tree's prior state remains valid.
	ErrNodeTooLarge = errors.New("node too large to serialize")
	// ErrPageIDExhausted is returned when an index's page-id counter would
	// overflow.
	ErrPageIDExhausted = errors.New("page id counter exhausted")
	// ErrClosed is returned by any operation attempted after Database.Close.
	ErrClosed = errors.New("database is closed")
)
