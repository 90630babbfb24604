// Package leveldb is a durable store adapter on top of goleveldb. All named
// databases share one leveldb instance under its default bytewise
// comparer; their entries are separated by a composite key encoded so that
// byte order matches each database's key ordering. Only the bytewise and
// reverse-bytewise orderings have such an encoding.
//
// Write transactions are leveldb transactions: exclusive, with
// read-your-writes. Read transactions are leveldb snapshots.
package leveldb

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/store"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// Options tunes the underlying leveldb instance.
type Options struct {
	BlockCacheCapacity  int
	WriteBuffer         int
	Compression         string // "snappy" or "none"
	RecoverOnCorruption bool
}

// DefaultOptions mirrors the settings used for large node databases.
func DefaultOptions() Options {
	return Options{
		BlockCacheCapacity:  256 * opt.MiB,
		WriteBuffer:         128 * opt.MiB,
		Compression:         "none",
		RecoverOnCorruption: true,
	}
}

func (o Options) leveldbOptions() (*opt.Options, error) {
	lo := &opt.Options{
		BlockCacheCapacity: o.BlockCacheCapacity,
		WriteBuffer:        o.WriteBuffer,
	}
	switch strings.ToLower(o.Compression) {
	case "", "none":
		lo.Compression = opt.NoCompression
	case "snappy":
		lo.Compression = opt.SnappyCompression
	default:
		return nil, fmt.Errorf("unknown leveldb compression %q", o.Compression)
	}
	return lo, nil
}

// Env is a leveldb-backed store environment.
type Env struct {
	ldb    *leveldb.DB
	logger *slog.Logger

	mu     sync.Mutex
	dbs    map[string]*database
	closed bool
}

var _ store.Env = (*Env)(nil)

// Open opens or creates a durable environment at path. A corrupted database
// is recovered when o.RecoverOnCorruption is set.
func Open(path string, o Options, logger *slog.Logger) (*Env, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "leveldb", "path", path)
	lo, err := o.leveldbOptions()
	if err != nil {
		return nil, err
	}

	ldb, err := leveldb.OpenFile(path, lo)
	var corrupted *lerrors.ErrCorrupted
	if errors.As(err, &corrupted) && o.RecoverOnCorruption {
		logger.Warn("LevelDB corruption detected, attempting recovery", "error", err)
		ldb, err = leveldb.RecoverFile(path, lo)
		if err != nil {
			return nil, fmt.Errorf("recover leveldb at %s: %w", path, err)
		}
		logger.Warn("LevelDB recovered from corruption")
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	logger.Info("LevelDB store opened.")
	return newEnv(ldb, logger), nil
}

// OpenInMemory opens an environment backed by leveldb's memory storage.
func OpenInMemory(o Options, logger *slog.Logger) (*Env, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lo, err := o.leveldbOptions()
	if err != nil {
		return nil, err
	}
	ldb, err := leveldb.Open(storage.NewMemStorage(), lo)
	if err != nil {
		return nil, fmt.Errorf("open in-memory leveldb: %w", err)
	}
	return newEnv(ldb, logger.With("component", "leveldb", "path", ":memory:")), nil
}

func newEnv(ldb *leveldb.DB, logger *slog.Logger) *Env {
	return &Env{ldb: ldb, logger: logger, dbs: make(map[string]*database)}
}

// OpenDatabase implements store.Env. The ordering name is checked against
// the one recorded when the database was first written. Orderings other
// than bytewise and core.ReverseBytes fail with store.ErrUnsupportedOrdering.
func (e *Env) OpenDatabase(name string, ordering core.KeyOrdering) (store.Database, error) {
	if name == metaDB {
		return nil, fmt.Errorf("database name %q is reserved", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, store.ErrEnvClosed
	}
	want := core.OrderingName(ordering)
	conflict := func(have string) error {
		return fmt.Errorf("database %q uses ordering %q, requested %q: %w", name, have, want, store.ErrOrderingConflict)
	}
	if db, ok := e.dbs[name]; ok {
		if have := core.OrderingName(db.ordering); have != want {
			return nil, conflict(have)
		}
		return db, nil
	}
	form, err := formFor(ordering)
	if err != nil {
		return nil, err
	}

	recorded, err := e.ldb.Get(metaKey(name), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("read ordering of database %q: %w", name, err)
	default:
		if have := string(recorded); have != want {
			return nil, conflict(have)
		}
	}

	db := &database{env: e, name: name, ordering: ordering, form: form}
	e.dbs[name] = db
	e.logger.Debug("Opened database", "name", name, "ordering", want)
	return db, nil
}

// Begin implements store.Env.
func (e *Env) Begin(writable bool) (store.Txn, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, store.ErrEnvClosed
	}
	if writable {
		tr, err := e.ldb.OpenTransaction()
		if err != nil {
			return nil, fmt.Errorf("begin leveldb transaction: %w", err)
		}
		return &txn{env: e, tr: tr, recorded: make(map[string]bool)}, nil
	}
	snap, err := e.ldb.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("acquire leveldb snapshot: %w", err)
	}
	return &txn{env: e, snap: snap}, nil
}

// Close closes the leveldb instance. Subsequent calls are no-ops.
func (e *Env) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.ldb.Close(); err != nil {
		return fmt.Errorf("close leveldb: %w", err)
	}
	e.logger.Info("LevelDB store closed.")
	return nil
}

func (e *Env) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
