package leveldb

import (
	"fmt"

	"github.com/INLOpen/atomindex/store"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// reader is the read surface shared by leveldb transactions and snapshots.
type reader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

// txn wraps either a write transaction (tr) or a read snapshot (snap).
type txn struct {
	env  *Env
	tr   *leveldb.Transaction
	snap *leveldb.Snapshot

	// gen changes on every write so cursors know to rebuild their
	// iterators.
	gen      uint64
	cursors  int
	closed   bool
	recorded map[string]bool
}

func (t *txn) Writable() bool { return t.tr != nil }

func (t *txn) reader() reader {
	if t.tr != nil {
		return t.tr
	}
	return t.snap
}

func (t *txn) finish() error {
	if t.closed {
		return store.ErrTxnClosed
	}
	if t.cursors > 0 {
		return fmt.Errorf("%d cursor(s) open: %w", t.cursors, store.ErrOpenCursors)
	}
	t.closed = true
	return nil
}

func (t *txn) Commit() error {
	if err := t.finish(); err != nil {
		return err
	}
	if t.snap != nil {
		t.snap.Release()
		return nil
	}
	if err := t.tr.Commit(); err != nil {
		return fmt.Errorf("commit leveldb transaction: %w", err)
	}
	return nil
}

func (t *txn) Abort() error {
	if err := t.finish(); err != nil {
		return err
	}
	if t.snap != nil {
		t.snap.Release()
		return nil
	}
	t.tr.Discard()
	return nil
}

// record writes the ordering name of d the first time d is written in t.
func (t *txn) record(d *database) error {
	if t.recorded[d.name] {
		return nil
	}
	if err := t.tr.Put(metaKey(d.name), []byte(d.orderingName()), nil); err != nil {
		return fmt.Errorf("record ordering of %q: %w", d.name, err)
	}
	t.recorded[d.name] = true
	return nil
}

func check(env *Env, tx store.Txn, write bool) (*txn, error) {
	t, ok := tx.(*txn)
	if !ok || t.env != env {
		return nil, fmt.Errorf("leveldb: foreign transaction %T", tx)
	}
	if t.closed {
		return nil, store.ErrTxnClosed
	}
	if write && t.tr == nil {
		return nil, store.ErrReadOnly
	}
	if env.isClosed() {
		return nil, store.ErrEnvClosed
	}
	return t, nil
}
