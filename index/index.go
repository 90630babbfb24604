// Package index maps serialized keys to values inside a store database and
// walks them through bidirectional result sets.
package index

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/INLOpen/atomindex/codec"
	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/store"
)

// Options configures an Index.
type Options[K, V any] struct {
	// Name is the store database holding the index.
	Name       string
	KeyCodec   codec.Codec[K]
	ValueCodec codec.Codec[V]
	// Ordering orders serialized keys; nil means bytewise.
	Ordering core.KeyOrdering
	Logger   *slog.Logger
}

// Index is an ordered mapping from keys to one or many values, stored as
// sorted duplicates.
type Index[K, V any] struct {
	name     string
	db       store.Database
	keys     codec.Codec[K]
	values   codec.Codec[V]
	ordering core.KeyOrdering
	logger   *slog.Logger
}

// Open opens (or creates) the index database in env.
func Open[K, V any](env store.Env, opts Options[K, V]) (*Index[K, V], error) {
	if opts.Name == "" {
		return nil, errors.New("index name is required")
	}
	if opts.KeyCodec == nil || opts.ValueCodec == nil {
		return nil, fmt.Errorf("index %q: key and value codecs are required", opts.Name)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	db, err := env.OpenDatabase(opts.Name, opts.Ordering)
	if err != nil {
		return nil, fmt.Errorf("open index %q: %w", opts.Name, err)
	}
	return &Index[K, V]{
		name:     opts.Name,
		db:       db,
		keys:     opts.KeyCodec,
		values:   opts.ValueCodec,
		ordering: opts.Ordering,
		logger:   logger.With("component", "Index", "index", opts.Name),
	}, nil
}

func (ix *Index[K, V]) Name() string { return ix.name }

// IsOrdered reports whether result sets of this index are ordered, that is
// whether the value codec preserves order bytewise.
func (ix *Index[K, V]) IsOrdered() bool { return codec.PreservesOrder(ix.values) }

// Ordering returns the key ordering, nil for bytewise.
func (ix *Index[K, V]) Ordering() core.KeyOrdering { return ix.ordering }

func (ix *Index[K, V]) storeErr(op string, err error) error {
	return &core.StoreError{Op: op, Index: ix.name, Err: err}
}

func (ix *Index[K, V]) encodeKey(k K) ([]byte, error) {
	b, err := ix.keys.Encode(k)
	if err != nil {
		return nil, fmt.Errorf("index %q: encode key: %w", ix.name, err)
	}
	return b, nil
}

func (ix *Index[K, V]) encodePair(k K, v V) ([]byte, []byte, error) {
	kb, err := ix.encodeKey(k)
	if err != nil {
		return nil, nil, err
	}
	vb, err := ix.values.Encode(v)
	if err != nil {
		return nil, nil, fmt.Errorf("index %q: encode value: %w", ix.name, err)
	}
	return kb, vb, nil
}

// AddEntry stores (k, v). Adding an existing pair is a no-op.
func (ix *Index[K, V]) AddEntry(tx store.Txn, k K, v V) error {
	kb, vb, err := ix.encodePair(k, v)
	if err != nil {
		return err
	}
	if err := ix.db.Put(tx, kb, vb); err != nil {
		return ix.storeErr("AddEntry", err)
	}
	return nil
}

// RemoveEntry deletes (k, v) and reports whether it was present.
func (ix *Index[K, V]) RemoveEntry(tx store.Txn, k K, v V) (bool, error) {
	kb, vb, err := ix.encodePair(k, v)
	if err != nil {
		return false, err
	}
	ok, err := ix.db.Delete(tx, kb, vb)
	if err != nil {
		return false, ix.storeErr("RemoveEntry", err)
	}
	return ok, nil
}

// RemoveAllEntries deletes every value stored under k.
func (ix *Index[K, V]) RemoveAllEntries(tx store.Txn, k K) (int, error) {
	kb, err := ix.encodeKey(k)
	if err != nil {
		return 0, err
	}
	n, err := ix.db.DeleteKey(tx, kb)
	if err != nil {
		return 0, ix.storeErr("RemoveAllEntries", err)
	}
	return n, nil
}

// Clear deletes every entry of the index and returns how many there were.
func (ix *Index[K, V]) Clear(tx store.Txn) (int, error) {
	c, err := ix.db.Cursor(tx)
	if err != nil {
		return 0, ix.storeErr("Clear", err)
	}
	n := 0
	_, ok, err := c.First()
	for ; ok && err == nil; _, ok, err = c.Next() {
		if err = c.Delete(); err != nil {
			break
		}
		n++
	}
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, ix.storeErr("Clear", err)
	}
	return n, nil
}

// Scan opens a result set over scope, positioned before its first element.
func (ix *Index[K, V]) Scan(tx store.Txn, scope Scope) (*ResultSet[V], error) {
	c, err := ix.db.Cursor(tx)
	if err != nil {
		return nil, ix.storeErr("Scan", err)
	}
	rc := NewRangeCursor(c, ix.name, ix.ordering, scope)
	rs := newResultSet(rc, ix.values, ix.IsOrdered(), ix.logger)
	if err := rs.GoBeforeFirst(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Find returns the values stored under k. The result set is empty when the
// key is absent.
func (ix *Index[K, V]) Find(tx store.Txn, k K) (*ResultSet[V], error) {
	kb, err := ix.encodeKey(k)
	if err != nil {
		return nil, err
	}
	return ix.Scan(tx, Key(kb))
}

// FindFirst returns the smallest value stored under k.
func (ix *Index[K, V]) FindFirst(tx store.Txn, k K) (v V, found bool, err error) {
	rs, err := ix.Find(tx, k)
	if err != nil {
		return v, false, err
	}
	defer rs.Close()
	ok, err := rs.HasNext()
	if err != nil || !ok {
		return v, false, err
	}
	v, err = rs.Next()
	return v, err == nil, err
}

// Count returns the number of values stored under k.
func (ix *Index[K, V]) Count(tx store.Txn, k K) (int, error) {
	rs, err := ix.Find(tx, k)
	if err != nil {
		return 0, err
	}
	defer rs.Close()
	ok, err := rs.HasNext()
	if err != nil || !ok {
		return 0, err
	}
	return rs.Count()
}

// ScanValues walks every value of the index in key order.
func (ix *Index[K, V]) ScanValues(tx store.Txn) (*ResultSet[V], error) {
	return ix.Scan(tx, All())
}

// FindRange walks the values whose keys fall in [lo, hi) under the index
// ordering.
func (ix *Index[K, V]) FindRange(tx store.Txn, lo, hi K) (*ResultSet[V], error) {
	lb, err := ix.encodeKey(lo)
	if err != nil {
		return nil, err
	}
	hb, err := ix.encodeKey(hi)
	if err != nil {
		return nil, err
	}
	return ix.Scan(tx, Range(lb, hb))
}
