package index

import (
	"bytes"

	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/store"
)

type scopeKind int

const (
	scopeAll scopeKind = iota
	scopeKey
	scopeRange
)

// Scope restricts the entries a RangeCursor can reach.
type Scope struct {
	kind   scopeKind
	key    []byte
	lo, hi []byte
}

// All scopes a cursor to the whole index.
func All() Scope { return Scope{kind: scopeAll} }

// Key scopes a cursor to the duplicates of one serialized key.
func Key(key []byte) Scope { return Scope{kind: scopeKey, key: bytes.Clone(key)} }

// Range scopes a cursor to keys in [lo, hi) under the index ordering. A nil
// bound is open.
func Range(lo, hi []byte) Scope {
	return Scope{kind: scopeRange, lo: bytes.Clone(lo), hi: bytes.Clone(hi)}
}

// IsKey reports whether the scope is a single key.
func (s Scope) IsKey() bool { return s.kind == scopeKey }

func (s Scope) String() string {
	switch s.kind {
	case scopeKey:
		return "key"
	case scopeRange:
		return "range"
	}
	return "all"
}

// RangeCursor wraps one store cursor and keeps every motion inside its
// scope. A motion that would leave the scope reports no entry and leaves
// the cursor where it was.
//
// Store failures are returned as *core.StoreError; calls after Close fail
// with a *core.UsageError wrapping core.ErrClosed.
type RangeCursor struct {
	c        store.Cursor
	ordering core.KeyOrdering
	scope    Scope
	index    string

	pos    *store.Entry // last entry landed on
	closed bool
}

// NewRangeCursor takes ownership of c. index names the database in errors.
func NewRangeCursor(c store.Cursor, index string, ordering core.KeyOrdering, scope Scope) *RangeCursor {
	return &RangeCursor{c: c, ordering: ordering, scope: scope, index: index}
}

// Scope returns the cursor's scope.
func (rc *RangeCursor) Scope() Scope { return rc.scope }

// IsOpen reports whether Close has not been called yet.
func (rc *RangeCursor) IsOpen() bool { return !rc.closed }

func (rc *RangeCursor) storeErr(op string, err error) error {
	return &core.StoreError{Op: op, Index: rc.index, Err: err}
}

func (rc *RangeCursor) inScope(key []byte) bool {
	switch rc.scope.kind {
	case scopeKey:
		return bytes.Equal(key, rc.scope.key)
	case scopeRange:
		if rc.scope.lo != nil && core.CompareKeys(rc.ordering, key, rc.scope.lo) < 0 {
			return false
		}
		if rc.scope.hi != nil && core.CompareKeys(rc.ordering, key, rc.scope.hi) >= 0 {
			return false
		}
	}
	return true
}

type step func() (store.Entry, bool, error)

// land filters the outcome of a store call through the scope. An entry
// outside the scope is treated as a miss. When the store cursor may have
// been moved by an earlier helper call (moved) or by the step itself, it is
// put back on the previous position.
func (rc *RangeCursor) land(op string, moved bool, s step) (store.Entry, bool, error) {
	e, ok, err := s()
	if err != nil {
		return store.Entry{}, false, rc.storeErr(op, err)
	}
	if ok && rc.inScope(e.Key) {
		rc.pos = &e
		return e, true, nil
	}
	if ok || moved {
		if err := rc.restore(); err != nil {
			return store.Entry{}, false, rc.storeErr(op, err)
		}
	}
	return store.Entry{}, false, nil
}

func (rc *RangeCursor) restore() error {
	if rc.pos == nil {
		return nil
	}
	_, _, err := rc.c.SearchBoth(rc.pos.Key, rc.pos.Value)
	return err
}

// CurrentKey returns the key of the last entry the cursor landed on.
func (rc *RangeCursor) CurrentKey() ([]byte, bool) {
	if rc.pos == nil {
		return nil, false
	}
	return rc.pos.Key, true
}

func (rc *RangeCursor) Current() (store.Entry, bool, error) {
	const op = "Current"
	if rc.closed {
		return store.Entry{}, false, core.NewUsageError(op, core.ErrClosed)
	}
	e, ok, err := rc.c.Current()
	if err != nil {
		return store.Entry{}, false, rc.storeErr(op, err)
	}
	return e, ok, nil
}

func (rc *RangeCursor) First() (store.Entry, bool, error) {
	const op = "First"
	if rc.closed {
		return store.Entry{}, false, core.NewUsageError(op, core.ErrClosed)
	}
	switch {
	case rc.scope.kind == scopeKey:
		return rc.land(op, false, func() (store.Entry, bool, error) { return rc.c.SearchKey(rc.scope.key) })
	case rc.scope.kind == scopeRange && rc.scope.lo != nil:
		return rc.land(op, false, func() (store.Entry, bool, error) { return rc.c.SearchKeyRange(rc.scope.lo) })
	}
	return rc.land(op, false, rc.c.First)
}

func (rc *RangeCursor) Last() (store.Entry, bool, error) {
	const op = "Last"
	if rc.closed {
		return store.Entry{}, false, core.NewUsageError(op, core.ErrClosed)
	}
	var probe step
	switch {
	case rc.scope.kind == scopeKey:
		// Step past the key's duplicates and come back one entry.
		_, ok, err := rc.c.SearchKey(rc.scope.key)
		if err != nil {
			return store.Entry{}, false, rc.storeErr(op, err)
		}
		if !ok {
			return store.Entry{}, false, nil
		}
		probe = rc.c.NextNoDup
	case rc.scope.kind == scopeRange && rc.scope.hi != nil:
		probe = func() (store.Entry, bool, error) { return rc.c.SearchKeyRange(rc.scope.hi) }
	default:
		return rc.land(op, false, rc.c.Last)
	}
	_, ok, err := probe()
	if err != nil {
		return store.Entry{}, false, rc.storeErr(op, err)
	}
	if ok {
		return rc.land(op, true, rc.c.Prev)
	}
	return rc.land(op, true, rc.c.Last)
}

// SearchExact lands on the exact (key, value) pair.
func (rc *RangeCursor) SearchExact(key, value []byte) (store.Entry, bool, error) {
	const op = "SearchExact"
	if rc.closed {
		return store.Entry{}, false, core.NewUsageError(op, core.ErrClosed)
	}
	return rc.land(op, false, func() (store.Entry, bool, error) { return rc.c.SearchBoth(key, value) })
}

// SearchClosest lands on the first duplicate of key whose value is >= value.
func (rc *RangeCursor) SearchClosest(key, value []byte) (store.Entry, bool, error) {
	const op = "SearchClosest"
	if rc.closed {
		return store.Entry{}, false, core.NewUsageError(op, core.ErrClosed)
	}
	return rc.land(op, false, func() (store.Entry, bool, error) { return rc.c.SearchBothRange(key, value) })
}

// Advance moves to the next entry in scope. An unpositioned cursor lands on
// the first one.
func (rc *RangeCursor) Advance() (store.Entry, bool, error) {
	const op = "Advance"
	if rc.closed {
		return store.Entry{}, false, core.NewUsageError(op, core.ErrClosed)
	}
	if rc.pos == nil {
		return rc.First()
	}
	if rc.scope.kind == scopeKey {
		return rc.land(op, false, rc.c.NextDup)
	}
	return rc.land(op, false, rc.c.Next)
}

// Retreat moves to the previous entry in scope. An unpositioned cursor
// lands on the last one.
func (rc *RangeCursor) Retreat() (store.Entry, bool, error) {
	const op = "Retreat"
	if rc.closed {
		return store.Entry{}, false, core.NewUsageError(op, core.ErrClosed)
	}
	if rc.pos == nil {
		return rc.Last()
	}
	if rc.scope.kind == scopeKey {
		return rc.land(op, false, rc.c.PrevDup)
	}
	return rc.land(op, false, rc.c.Prev)
}

// Delete removes the entry under the store cursor.
func (rc *RangeCursor) Delete() error {
	const op = "Delete"
	if rc.closed {
		return core.NewUsageError(op, core.ErrClosed)
	}
	if err := rc.c.Delete(); err != nil {
		return rc.storeErr(op, err)
	}
	return nil
}

// DuplicateCount returns the number of entries sharing the current key.
func (rc *RangeCursor) DuplicateCount() (int, error) {
	const op = "DuplicateCount"
	if rc.closed {
		return 0, core.NewUsageError(op, core.ErrClosed)
	}
	n, err := rc.c.Count()
	if err != nil {
		return 0, rc.storeErr(op, err)
	}
	return n, nil
}

// Close releases the store cursor. Only the first call has an effect.
func (rc *RangeCursor) Close() error {
	if rc.closed {
		return nil
	}
	rc.closed = true
	if err := rc.c.Close(); err != nil {
		return rc.storeErr("Close", err)
	}
	return nil
}
