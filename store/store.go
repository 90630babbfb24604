// Package store defines the contract between the index layer and the
// ordered, duplicate-key-capable key-value engine underneath it.
//
// A store keeps named databases of (key, value) entries. Keys may repeat;
// entries sharing a key ("duplicates") are kept sorted by their value
// bytes, and a (key, value) pair is stored at most once. Keys are ordered
// by the database's KeyOrdering, or bytewise when it has none.
//
// Adapters live in the memstore and leveldb sub-packages.
package store

import (
	"bytes"
	"errors"

	"github.com/INLOpen/atomindex/core"
)

var (
	ErrEnvClosed        = errors.New("store: environment is closed")
	ErrTxnClosed        = errors.New("store: transaction is closed")
	ErrReadOnly         = errors.New("store: transaction is read-only")
	ErrCursorClosed     = errors.New("store: cursor is closed")
	ErrOpenCursors      = errors.New("store: transaction still has open cursors")
	ErrOrderingConflict = errors.New("store: database already opened with a different ordering")
	ErrNotFound         = errors.New("store: database not found")
	ErrNotPositioned    = errors.New("store: cursor is not positioned")

	// ErrUnsupportedOrdering is returned by adapters that cannot keep a
	// database in the requested key ordering.
	ErrUnsupportedOrdering = errors.New("store: key ordering is not supported by this adapter")
)

// Entry is one (key, value) pair. Slices returned by a cursor are owned by
// the caller.
type Entry struct {
	Key   []byte
	Value []byte
}

// Env is an open store environment holding named databases.
type Env interface {
	// OpenDatabase opens or creates the named database. ordering may be
	// nil for bytewise key order. Reopening a database with a different
	// ordering name fails with ErrOrderingConflict. An adapter that cannot
	// keep the ordering fails with ErrUnsupportedOrdering.
	OpenDatabase(name string, ordering core.KeyOrdering) (Database, error)

	// Begin starts a transaction. Write transactions are exclusive: Begin
	// blocks while another write transaction is active.
	Begin(writable bool) (Txn, error)

	Close() error
}

// Txn scopes reads, writes and cursors. All cursors opened in a
// transaction must be closed before Commit or Abort.
type Txn interface {
	Writable() bool
	Commit() error
	Abort() error
}

// Database is one named sorted-duplicates database.
type Database interface {
	Name() string
	Ordering() core.KeyOrdering

	// Put stores the pair; storing an existing pair is a no-op.
	Put(tx Txn, key, value []byte) error
	// Delete removes the pair and reports whether it existed.
	Delete(tx Txn, key, value []byte) (bool, error)
	// DeleteKey removes every duplicate of key and returns how many.
	DeleteKey(tx Txn, key []byte) (int, error)

	Cursor(tx Txn) (Cursor, error)
}

// Cursor is a positionable handle over one database within one
// transaction. Positioning and motion calls return the entry the cursor
// lands on, false when there is no such entry, or an error when the store
// itself fails. A call that reports no entry leaves the position unchanged.
//
// Next and Prev on an unpositioned cursor behave like First and Last.
// After Delete the cursor stays on the (now empty) slot: Current reports
// no entry, relative motion continues from the deleted position and Count
// counts the remaining duplicates of the deleted key.
type Cursor interface {
	Current() (Entry, bool, error)
	First() (Entry, bool, error)
	Last() (Entry, bool, error)

	// SearchKey lands on the first duplicate of key.
	SearchKey(key []byte) (Entry, bool, error)
	// SearchKeyRange lands on the first entry whose key is >= key.
	SearchKeyRange(key []byte) (Entry, bool, error)
	// SearchBoth lands on the exact pair.
	SearchBoth(key, value []byte) (Entry, bool, error)
	// SearchBothRange lands on the first duplicate of key whose value is
	// >= value (bytewise).
	SearchBothRange(key, value []byte) (Entry, bool, error)

	Next() (Entry, bool, error)
	Prev() (Entry, bool, error)
	// NextDup and PrevDup move only within the duplicates of the current key.
	NextDup() (Entry, bool, error)
	PrevDup() (Entry, bool, error)
	// NextNoDup lands on the first entry of the next distinct key.
	NextNoDup() (Entry, bool, error)

	// Delete removes the entry under the cursor.
	Delete() error
	// Count returns the number of duplicates of the current key, 0 when
	// the cursor has never been positioned.
	Count() (int, error)

	Close() error
}

// CompareEntries orders entries the way every adapter stores them: by key
// under ordering, ties on ordering broken by raw key bytes so duplicate
// groups stay contiguous, then by value bytes.
func CompareEntries(ordering core.KeyOrdering, aKey, aValue, bKey, bValue []byte) int {
	if c := core.CompareKeys(ordering, aKey, bKey); c != 0 {
		return c
	}
	if ordering != nil {
		if c := bytes.Compare(aKey, bKey); c != 0 {
			return c
		}
	}
	return bytes.Compare(aValue, bValue)
}

// SameKey reports whether two keys belong to the same duplicate group.
func SameKey(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// Clone copies both slices of e.
func (e Entry) Clone() Entry {
	return Entry{Key: bytes.Clone(e.Key), Value: bytes.Clone(e.Value)}
}
