package index

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/INLOpen/atomindex/codec"
	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/store"
)

type slotState uint8

const (
	slotUnresolved slotState = iota // not decoded from the store yet
	slotValue
	slotEnd // no element in that direction
)

// slot is one of the three window positions of a ResultSet.
type slot[T any] struct {
	state slotState
	value T
}

func unresolved[T any]() slot[T] { return slot[T]{} }
func endOfSeq[T any]() slot[T]   { return slot[T]{state: slotEnd} }
func valued[T any](v T) slot[T]  { return slot[T]{state: slotValue, value: v} }

func (s slot[T]) isValue() bool  { return s.state == slotValue }
func (s slot[T]) resolved() bool { return s.state != slotUnresolved }

// ResultSet is a bidirectional, lazily decoded sequence over the values of
// a RangeCursor.
//
// The set keeps a window of three slots (prev, current, next) and a signed
// lookahead counter: the number of store steps the store cursor sits ahead
// of (positive) or behind (negative) the logical current position. HasNext
// and HasPrev step the store cursor only until the adjacent slot is
// resolved, so repeated calls are free.
//
// A ResultSet is owned by one goroutine and must be closed. Any store
// failure closes it before the error is returned.
type ResultSet[T any] struct {
	rc      *RangeCursor
	codec   codec.Codec[T]
	ordered bool
	logger  *slog.Logger

	prev, cur, next slot[T]
	lookahead       int
	invalidated     bool
	closed          bool
}

func newResultSet[T any](rc *RangeCursor, c codec.Codec[T], ordered bool, logger *slog.Logger) *ResultSet[T] {
	return &ResultSet[T]{rc: rc, codec: c, ordered: ordered, logger: logger}
}

func (rs *ResultSet[T]) closeQuietly() {
	if err := rs.Close(); err != nil {
		rs.logger.Warn("Failed to close result set after store failure", "error", err)
	}
}

// fail closes the set when err came from the store.
func (rs *ResultSet[T]) fail(err error) error {
	if core.IsStoreError(err) {
		rs.closeQuietly()
	}
	return err
}

func (rs *ResultSet[T]) decode(op string, e store.Entry) (T, error) {
	v, err := rs.codec.Decode(e.Value)
	if err != nil {
		var zero T
		return zero, rs.fail(&core.StoreError{Op: op, Index: rs.rc.index, Err: fmt.Errorf("decode value: %w", err)})
	}
	return v, nil
}

func (rs *ResultSet[T]) usable(op string, relative bool) error {
	if rs.closed {
		return core.NewUsageError(op, core.ErrClosed)
	}
	if relative && rs.invalidated {
		return core.NewUsageError(op, core.ErrInvalidated)
	}
	return nil
}

// advance steps the store cursor forward and decodes the entry.
func (rs *ResultSet[T]) advance(op string) (slot[T], error) {
	e, ok, err := rs.rc.Advance()
	if err != nil {
		return slot[T]{}, rs.fail(err)
	}
	if !ok {
		return endOfSeq[T](), nil
	}
	v, err := rs.decode(op, e)
	if err != nil {
		return slot[T]{}, err
	}
	return valued(v), nil
}

func (rs *ResultSet[T]) retreat(op string) (slot[T], error) {
	e, ok, err := rs.rc.Retreat()
	if err != nil {
		return slot[T]{}, rs.fail(err)
	}
	if !ok {
		return endOfSeq[T](), nil
	}
	v, err := rs.decode(op, e)
	if err != nil {
		return slot[T]{}, err
	}
	return valued(v), nil
}

// HasNext reports whether Next would succeed.
func (rs *ResultSet[T]) HasNext() (bool, error) {
	const op = "HasNext"
	if err := rs.usable(op, true); err != nil {
		return false, err
	}
	if !rs.next.resolved() {
		for rs.lookahead < 1 {
			s, err := rs.advance(op)
			if err != nil {
				return false, err
			}
			rs.next = s
			if !s.isValue() {
				break
			}
			rs.lookahead++
		}
	}
	return rs.next.isValue(), nil
}

// HasPrev reports whether Prev would succeed.
func (rs *ResultSet[T]) HasPrev() (bool, error) {
	const op = "HasPrev"
	if err := rs.usable(op, true); err != nil {
		return false, err
	}
	if !rs.prev.resolved() {
		for rs.lookahead > -1 {
			s, err := rs.retreat(op)
			if err != nil {
				return false, err
			}
			rs.prev = s
			if !s.isValue() {
				break
			}
			rs.lookahead--
		}
	}
	return rs.prev.isValue(), nil
}

// Next moves to the following element and returns it. At the end of the
// sequence it fails with core.ErrEndOfSequence.
func (rs *ResultSet[T]) Next() (T, error) {
	var zero T
	ok, err := rs.HasNext()
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, core.EndOfSequence("Next")
	}
	rs.prev, rs.cur, rs.next = rs.cur, rs.next, unresolved[T]()
	rs.lookahead--
	return rs.cur.value, nil
}

// Prev moves to the preceding element and returns it. At the start of the
// sequence it fails with core.ErrEndOfSequence.
func (rs *ResultSet[T]) Prev() (T, error) {
	var zero T
	ok, err := rs.HasPrev()
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, core.EndOfSequence("Prev")
	}
	rs.next, rs.cur, rs.prev = rs.cur, rs.prev, unresolved[T]()
	rs.lookahead++
	return rs.cur.value, nil
}

// Current returns the element at the logical position. It fails with a
// usage error before the set has been positioned on an element.
func (rs *ResultSet[T]) Current() (T, error) {
	const op = "Current"
	var zero T
	if err := rs.usable(op, true); err != nil {
		return zero, err
	}
	if !rs.cur.isValue() {
		return zero, core.NewUsageError(op, core.ErrNotPositioned)
	}
	return rs.cur.value, nil
}

// GoBeforeFirst positions the set before the first element of its scope.
func (rs *ResultSet[T]) GoBeforeFirst() error {
	const op = "GoBeforeFirst"
	if err := rs.usable(op, false); err != nil {
		return err
	}
	e, ok, err := rs.rc.First()
	if err != nil {
		return rs.fail(err)
	}
	rs.invalidated = false
	rs.cur = unresolved[T]()
	if !ok {
		rs.prev, rs.next, rs.lookahead = endOfSeq[T](), endOfSeq[T](), 0
		return nil
	}
	v, err := rs.decode(op, e)
	if err != nil {
		return err
	}
	rs.prev, rs.next, rs.lookahead = endOfSeq[T](), valued(v), 1
	return nil
}

// GoAfterLast positions the set after the last element of its scope.
func (rs *ResultSet[T]) GoAfterLast() error {
	const op = "GoAfterLast"
	if err := rs.usable(op, false); err != nil {
		return err
	}
	e, ok, err := rs.rc.Last()
	if err != nil {
		return rs.fail(err)
	}
	rs.invalidated = false
	rs.cur = unresolved[T]()
	if !ok {
		rs.prev, rs.next, rs.lookahead = endOfSeq[T](), endOfSeq[T](), 0
		return nil
	}
	v, err := rs.decode(op, e)
	if err != nil {
		return err
	}
	rs.prev, rs.next, rs.lookahead = valued(v), endOfSeq[T](), -1
	return nil
}

func (rs *ResultSet[T]) positionTo(op string, e store.Entry) error {
	v, err := rs.decode(op, e)
	if err != nil {
		return err
	}
	rs.cur = valued(v)
	rs.prev, rs.next = unresolved[T](), unresolved[T]()
	rs.lookahead = 0
	rs.invalidated = false
	return nil
}

// GoTo positions the set on value within the current key: the scoped key
// for key-scoped sets, otherwise the key the cursor is on.
//
// With exact set the result is GotoFound or GotoNothing. Otherwise the set
// lands on the smallest entry whose value bytes are >= the encoded value
// and reports GotoFound when the bytes are equal, GotoClose when not.
// Ordering never decides found versus close; only byte equality does.
// GotoNothing leaves the position unchanged.
func (rs *ResultSet[T]) GoTo(value T, exact bool) (core.GotoResult, error) {
	const op = "GoTo"
	if err := rs.usable(op, false); err != nil {
		return core.GotoNothing, err
	}
	want, err := rs.codec.Encode(value)
	if err != nil {
		return core.GotoNothing, fmt.Errorf("%s: encode value: %w", op, err)
	}
	key := rs.rc.scope.key
	if !rs.rc.scope.IsKey() {
		k, ok := rs.rc.CurrentKey()
		if !ok {
			return core.GotoNothing, core.NewUsageError(op, core.ErrNoKey)
		}
		key = k
	}

	search := rs.rc.SearchClosest
	if exact {
		search = rs.rc.SearchExact
	}
	e, ok, err := search(key, want)
	if err != nil {
		return core.GotoNothing, rs.fail(err)
	}
	if !ok {
		return core.GotoNothing, nil
	}
	result := core.GotoClose
	if bytes.Equal(e.Value, want) {
		result = core.GotoFound
	}
	if err := rs.positionTo(op, e); err != nil {
		return core.GotoNothing, err
	}
	return result, nil
}

// Count returns the number of entries sharing the key the store cursor is
// on, independent of the window.
func (rs *ResultSet[T]) Count() (int, error) {
	if err := rs.usable("Count", false); err != nil {
		return 0, err
	}
	n, err := rs.rc.DuplicateCount()
	if err != nil {
		return 0, rs.fail(err)
	}
	return n, nil
}

// RemoveCurrent deletes the entry the store cursor is on. That is the
// current element unless HasNext or HasPrev has looked ahead since the last
// motion. Afterwards Current and relative motion fail with a usage error wrapping
// core.ErrInvalidated until GoTo, GoBeforeFirst or GoAfterLast succeeds.
func (rs *ResultSet[T]) RemoveCurrent() error {
	const op = "RemoveCurrent"
	if err := rs.usable(op, true); err != nil {
		return err
	}
	if err := rs.rc.Delete(); err != nil {
		if errors.Is(err, store.ErrNotPositioned) {
			return core.NewUsageError(op, core.ErrNotPositioned)
		}
		return rs.fail(err)
	}
	rs.invalidated = true
	return nil
}

// Remove is positional removal, which result sets do not offer. Use
// RemoveCurrent.
func (rs *ResultSet[T]) Remove() error {
	return fmt.Errorf("result set Remove: %w", core.ErrUnsupported)
}

// IsOrdered reports whether the sequence follows the byte order of the
// encoded values, which is what merge algorithms need.
func (rs *ResultSet[T]) IsOrdered() bool { return rs.ordered }

// IsOpen reports whether the set can still be used.
func (rs *ResultSet[T]) IsOpen() bool { return !rs.closed }

// Close releases the cursor. Calling Close again is a no-op.
func (rs *ResultSet[T]) Close() error {
	if rs.closed {
		return nil
	}
	rs.closed = true
	rs.prev, rs.cur, rs.next = unresolved[T](), unresolved[T](), unresolved[T]()
	return rs.rc.Close()
}

// All yields the elements from the first to the last. Iteration stops at
// the first error, which is yielded with a zero value.
func (rs *ResultSet[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if err := rs.GoBeforeFirst(); err != nil {
			yield(zero, err)
			return
		}
		for {
			ok, err := rs.HasNext()
			if err != nil {
				yield(zero, err)
				return
			}
			if !ok {
				return
			}
			v, err := rs.Next()
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}
