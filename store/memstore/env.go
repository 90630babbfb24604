// Package memstore is an in-memory store adapter built on a skiplist per
// database. It honours custom key orderings and is the default backend for
// tests and ephemeral graphs.
//
// Isolation is read-uncommitted: readers observe the writes of the active
// write transaction. Write transactions are exclusive and keep an undo log
// so that Abort restores the previous state.
package memstore

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/store"
	"github.com/INLOpen/skiplist"
)

// Env is an in-memory store environment.
type Env struct {
	mu      sync.RWMutex // guards dbs and every skiplist
	writeMu sync.Mutex   // held by the active write transaction
	dbs     map[string]*database
	closed  bool
	logger  *slog.Logger
}

var _ store.Env = (*Env)(nil)

// New creates an empty environment. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Env {
	if logger == nil {
		logger = slog.Default()
	}
	return &Env{
		dbs:    make(map[string]*database),
		logger: logger.With("component", "memstore"),
	}
}

// OpenDatabase implements store.Env.
func (e *Env) OpenDatabase(name string, ordering core.KeyOrdering) (store.Database, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, store.ErrEnvClosed
	}
	if db, ok := e.dbs[name]; ok {
		if core.OrderingName(db.ordering) != core.OrderingName(ordering) {
			return nil, fmt.Errorf("database %q uses ordering %q, requested %q: %w",
				name, core.OrderingName(db.ordering), core.OrderingName(ordering), store.ErrOrderingConflict)
		}
		return db, nil
	}
	db := &database{
		env:      e,
		name:     name,
		ordering: ordering,
		data:     skiplist.NewWithComparator[*entryKey, *entryState](newComparator(ordering)),
	}
	e.dbs[name] = db
	e.logger.Debug("Created database", "name", name, "ordering", core.OrderingName(ordering))
	return db, nil
}

// Begin implements store.Env. A write transaction blocks until the previous
// one commits or aborts.
func (e *Env) Begin(writable bool) (store.Txn, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, store.ErrEnvClosed
	}
	if writable {
		e.writeMu.Lock()
	}
	return &txn{env: e, writable: writable}, nil
}

// Close releases every database. It is safe to call Close multiple times.
func (e *Env) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.dbs = nil
	e.logger.Info("Memory store closed.")
	return nil
}

// Compact drops tombstones left by deletions. It waits for the active write
// transaction to finish. Open cursors keep working because they remember
// positions by value, not by node.
func (e *Env) Compact() (dropped int, err error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, store.ErrEnvClosed
	}
	for _, db := range e.dbs {
		fresh := skiplist.NewWithComparator[*entryKey, *entryState](newComparator(db.ordering))
		db.data.Range(func(key *entryKey, state *entryState) bool {
			if state.Tombstone {
				dropped++
				return true
			}
			fresh.Insert(key, state)
			return true
		})
		db.data = fresh
	}
	e.logger.Info("Compacted memory store", "tombstones_dropped", dropped)
	return dropped, nil
}

// Len returns the number of live entries in the named database.
func (e *Env) Len(name string) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	db, ok := e.dbs[name]
	if !ok {
		return 0, fmt.Errorf("database %q: %w", name, store.ErrNotFound)
	}
	return db.live, nil
}

func (e *Env) isClosed() bool {
	return e.closed
}

// txn is a memstore transaction. Only write transactions carry an undo log.
type txn struct {
	env      *Env
	writable bool
	closed   bool
	cursors  int
	undo     []undoRecord
}

// undoRecord remembers whether a pair was live before a write touched it.
type undoRecord struct {
	db      *database
	key     *entryKey
	wasLive bool
}

func (t *txn) Writable() bool { return t.writable }

func (t *txn) Commit() error {
	if err := t.finish(); err != nil {
		return err
	}
	t.undo = nil
	t.release()
	return nil
}

func (t *txn) Abort() error {
	if err := t.finish(); err != nil {
		return err
	}
	t.env.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		rec := t.undo[i]
		rec.db.setLive(rec.key, rec.wasLive)
	}
	t.env.mu.Unlock()
	t.undo = nil
	t.release()
	return nil
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

func (t *txn) release() {
	if t.writable {
		t.env.writeMu.Unlock()
	}
}

// check validates that tx is an open transaction of env, writable if
// required.
func check(env *Env, tx store.Txn, write bool) (*txn, error) {
	t, ok := tx.(*txn)
	if !ok || t.env != env {
		return nil, fmt.Errorf("memstore: foreign transaction %T", tx)
	}
	if t.closed {
		return nil, store.ErrTxnClosed
	}
	if write && !t.writable {
		return nil, store.ErrReadOnly
	}
	return t, nil
}
