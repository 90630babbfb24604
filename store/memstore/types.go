package memstore

import (
	"bytes"

	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/store"
)

// keyKind distinguishes real entries from the synthetic bounds used to
// seek inside the skiplist.
type keyKind int8

const (
	kindEntry    keyKind = iota
	kindFirst            // before every entry
	kindLast             // after every entry
	kindAfterKey         // after every duplicate of Key
)

// entryKey is the skiplist key. Real entries are unique (Key, Value) pairs.
type entryKey struct {
	Key   []byte
	Value []byte
	kind  keyKind
}

// entryState is the skiplist value. Deletions leave a tombstone behind so
// that positions held by open cursors stay meaningful; Compact drops them.
type entryState struct {
	Tombstone bool
}

func (k *entryKey) entry() store.Entry {
	return store.Entry{Key: bytes.Clone(k.Key), Value: bytes.Clone(k.Value)}
}

func newEntryKey(key, value []byte) *entryKey {
	return &entryKey{Key: bytes.Clone(key), Value: bytes.Clone(value)}
}

// newComparator defines the sort order of one database's skiplist.
// Sorting rules:
// 1. Bounds kindFirst/kindLast sort before/after everything.
// 2. Key under the database ordering, ties broken by raw key bytes.
// 3. kindAfterKey sorts after every value of its key.
// 4. Value bytes ascending (sorted duplicates).
func newComparator(ordering core.KeyOrdering) func(a, b *entryKey) int {
	return func(a, b *entryKey) int {
		if c := compareBound(a.kind, b.kind); c != 0 {
			return c
		}
		if a.kind == kindFirst || a.kind == kindLast {
			return 0
		}
		if c := core.CompareKeys(ordering, a.Key, b.Key); c != 0 {
			return c
		}
		if ordering != nil {
			if c := bytes.Compare(a.Key, b.Key); c != 0 {
				return c
			}
		}
		switch {
		case a.kind == kindAfterKey && b.kind == kindAfterKey:
			return 0
		case a.kind == kindAfterKey:
			return 1
		case b.kind == kindAfterKey:
			return -1
		}
		return bytes.Compare(a.Value, b.Value)
	}
}

func compareBound(a, b keyKind) int {
	rank := func(k keyKind) int {
		switch k {
		case kindFirst:
			return -1
		case kindLast:
			return 1
		}
		return 0
	}
	ra, rb := rank(a), rank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	return 0
}
