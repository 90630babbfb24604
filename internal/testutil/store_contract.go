package testutil

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"testing"

	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewTestLogger returns a debug-level text logger, or a discarding one
// when ATOMINDEX_QUIET_TESTS is set.
func NewTestLogger() *slog.Logger {
	var w io.Writer = os.Stderr
	if os.Getenv("ATOMINDEX_QUIET_TESTS") != "" {
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// E builds an entry from strings.
func E(key, value string) store.Entry {
	return store.Entry{Key: []byte(key), Value: []byte(value)}
}

// Fill stores entries in db in one committed write transaction.
func Fill(t *testing.T, env store.Env, db store.Database, entries ...store.Entry) {
	t.Helper()
	tx, err := env.Begin(true)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, db.Put(tx, e.Key, e.Value))
	}
	require.NoError(t, tx.Commit())
}

// Scan walks c from First to the end.
func Scan(t *testing.T, c store.Cursor) []store.Entry {
	t.Helper()
	var out []store.Entry
	e, ok, err := c.First()
	for ; ok; e, ok, err = c.Next() {
		out = append(out, e)
	}
	require.NoError(t, err)
	return out
}

// ScanReverse walks c from Last to the beginning.
func ScanReverse(t *testing.T, c store.Cursor) []store.Entry {
	t.Helper()
	var out []store.Entry
	e, ok, err := c.Last()
	for ; ok; e, ok, err = c.Prev() {
		out = append(out, e)
	}
	require.NoError(t, err)
	return out
}

// WithCursor runs fn with a cursor over db in a fresh transaction and
// finishes the transaction afterwards. Write transactions are committed.
func WithCursor(t *testing.T, env store.Env, db store.Database, writable bool, fn func(tx store.Txn, c store.Cursor)) {
	t.Helper()
	tx, err := env.Begin(writable)
	require.NoError(t, err)
	c, err := db.Cursor(tx)
	require.NoError(t, err)
	fn(tx, c)
	require.NoError(t, c.Close())
	if writable {
		require.NoError(t, tx.Commit())
	} else {
		require.NoError(t, tx.Abort())
	}
}

func requireEntry(t *testing.T, want store.Entry, got store.Entry, ok bool, err error) {
	t.Helper()
	require.NoError(t, err)
	require.True(t, ok, "expected entry %q=%q", want.Key, want.Value)
	assert.Equal(t, string(want.Key), string(got.Key))
	assert.Equal(t, string(want.Value), string(got.Value))
}

func requireMiss(t *testing.T, _ store.Entry, ok bool, err error) {
	t.Helper()
	require.NoError(t, err)
	require.False(t, ok)
}

// RunStoreContract checks the behaviour every store adapter must share.
// newEnv must return a fresh, empty environment.
func RunStoreContract(t *testing.T, newEnv func(t *testing.T) store.Env) {
	open := func(t *testing.T, ordering core.KeyOrdering) (store.Env, store.Database) {
		env := newEnv(t)
		t.Cleanup(func() { _ = env.Close() })
		db, err := env.OpenDatabase("contract", ordering)
		require.NoError(t, err)
		return env, db
	}

	t.Run("SortedDuplicatesStoredOnce", func(t *testing.T) {
		env, db := open(t, nil)
		Fill(t, env, db, E("b", "0"), E("a", "2"), E("a", "1"), E("a", "1"))
		WithCursor(t, env, db, false, func(_ store.Txn, c store.Cursor) {
			assert.Equal(t, []store.Entry{E("a", "1"), E("a", "2"), E("b", "0")}, Scan(t, c))
			assert.Equal(t, []store.Entry{E("b", "0"), E("a", "2"), E("a", "1")}, ScanReverse(t, c))
		})
	})

	t.Run("Searches", func(t *testing.T) {
		env, db := open(t, nil)
		Fill(t, env, db, E("a", "1"), E("c", "1"), E("c", "3"), E("e", "0"))
		WithCursor(t, env, db, false, func(_ store.Txn, c store.Cursor) {
			e, ok, err := c.SearchKey([]byte("c"))
			requireEntry(t, E("c", "1"), e, ok, err)
			e, ok, err = c.SearchKey([]byte("b"))
			requireMiss(t, e, ok, err)
			e, ok, err = c.SearchKeyRange([]byte("b"))
			requireEntry(t, E("c", "1"), e, ok, err)
			e, ok, err = c.SearchKeyRange([]byte("f"))
			requireMiss(t, e, ok, err)
			e, ok, err = c.SearchBoth([]byte("c"), []byte("3"))
			requireEntry(t, E("c", "3"), e, ok, err)
			e, ok, err = c.SearchBoth([]byte("c"), []byte("2"))
			requireMiss(t, e, ok, err)
			e, ok, err = c.SearchBothRange([]byte("c"), []byte("2"))
			requireEntry(t, E("c", "3"), e, ok, err)
			e, ok, err = c.SearchBothRange([]byte("c"), []byte("4"))
			requireMiss(t, e, ok, err)
		})
	})

	t.Run("FailedMotionKeepsPosition", func(t *testing.T) {
		env, db := open(t, nil)
		Fill(t, env, db, E("a", "1"), E("b", "1"))
		WithCursor(t, env, db, false, func(_ store.Txn, c store.Cursor) {
			e, ok, err := c.Last()
			requireEntry(t, E("b", "1"), e, ok, err)
			e, ok, err = c.Next()
			requireMiss(t, e, ok, err)
			e, ok, err = c.SearchKey([]byte("zz"))
			requireMiss(t, e, ok, err)
			e, ok, err = c.Current()
			requireEntry(t, E("b", "1"), e, ok, err)
			e, ok, err = c.Prev()
			requireEntry(t, E("a", "1"), e, ok, err)
		})
	})

	t.Run("DuplicateMotion", func(t *testing.T) {
		env, db := open(t, nil)
		Fill(t, env, db, E("a", "1"), E("b", "1"), E("b", "2"), E("b", "3"), E("c", "1"))
		WithCursor(t, env, db, false, func(_ store.Txn, c store.Cursor) {
			n, err := c.Count()
			require.NoError(t, err)
			assert.Zero(t, n)

			e, ok, err := c.SearchKey([]byte("b"))
			requireEntry(t, E("b", "1"), e, ok, err)
			n, err = c.Count()
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			e, ok, err = c.PrevDup()
			requireMiss(t, e, ok, err)
			e, ok, err = c.NextDup()
			requireEntry(t, E("b", "2"), e, ok, err)
			e, ok, err = c.NextDup()
			requireEntry(t, E("b", "3"), e, ok, err)
			e, ok, err = c.NextDup()
			requireMiss(t, e, ok, err)
			e, ok, err = c.PrevDup()
			requireEntry(t, E("b", "2"), e, ok, err)
			e, ok, err = c.NextNoDup()
			requireEntry(t, E("c", "1"), e, ok, err)
			e, ok, err = c.NextNoDup()
			requireMiss(t, e, ok, err)
		})
	})

	t.Run("UnpositionedMotionStartsAtEnds", func(t *testing.T) {
		env, db := open(t, nil)
		Fill(t, env, db, E("a", "1"), E("b", "1"))
		WithCursor(t, env, db, false, func(_ store.Txn, c store.Cursor) {
			e, ok, err := c.Current()
			requireMiss(t, e, ok, err)
			e, ok, err = c.Next()
			requireEntry(t, E("a", "1"), e, ok, err)
		})
		WithCursor(t, env, db, false, func(_ store.Txn, c store.Cursor) {
			e, ok, err := c.Prev()
			requireEntry(t, E("b", "1"), e, ok, err)
		})
	})

	t.Run("DeleteUnderCursor", func(t *testing.T) {
		env, db := open(t, nil)
		Fill(t, env, db, E("a", "1"), E("a", "2"), E("a", "3"), E("b", "1"))
		WithCursor(t, env, db, true, func(_ store.Txn, c store.Cursor) {
			require.ErrorIs(t, c.Delete(), store.ErrNotPositioned)

			e, ok, err := c.SearchBoth([]byte("a"), []byte("2"))
			requireEntry(t, E("a", "2"), e, ok, err)
			require.NoError(t, c.Delete())

			e, ok, err = c.Current()
			requireMiss(t, e, ok, err)
			n, err := c.Count()
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			e, ok, err = c.Next()
			requireEntry(t, E("a", "3"), e, ok, err)
			e, ok, err = c.Prev()
			requireEntry(t, E("a", "1"), e, ok, err)
		})
		WithCursor(t, env, db, false, func(_ store.Txn, c store.Cursor) {
			assert.Equal(t, []store.Entry{E("a", "1"), E("a", "3"), E("b", "1")}, Scan(t, c))
		})
	})

	t.Run("DeleteAndDeleteKey", func(t *testing.T) {
		env, db := open(t, nil)
		Fill(t, env, db, E("a", "1"), E("a", "2"), E("b", "1"))
		tx, err := env.Begin(true)
		require.NoError(t, err)
		existed, err := db.Delete(tx, []byte("b"), []byte("1"))
		require.NoError(t, err)
		assert.True(t, existed)
		existed, err = db.Delete(tx, []byte("b"), []byte("1"))
		require.NoError(t, err)
		assert.False(t, existed)
		n, err := db.DeleteKey(tx, []byte("a"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		require.NoError(t, tx.Commit())

		WithCursor(t, env, db, false, func(_ store.Txn, c store.Cursor) {
			assert.Empty(t, Scan(t, c))
		})
	})

	t.Run("AbortDiscardsWrites", func(t *testing.T) {
		env, db := open(t, nil)
		Fill(t, env, db, E("a", "1"))
		tx, err := env.Begin(true)
		require.NoError(t, err)
		require.NoError(t, db.Put(tx, []byte("b"), []byte("1")))
		_, err = db.Delete(tx, []byte("a"), []byte("1"))
		require.NoError(t, err)
		require.NoError(t, tx.Abort())

		WithCursor(t, env, db, false, func(_ store.Txn, c store.Cursor) {
			assert.Equal(t, []store.Entry{E("a", "1")}, Scan(t, c))
		})
	})

	t.Run("TransactionRules", func(t *testing.T) {
		env, db := open(t, nil)
		tx, err := env.Begin(false)
		require.NoError(t, err)
		assert.False(t, tx.Writable())
		require.ErrorIs(t, db.Put(tx, []byte("a"), []byte("1")), store.ErrReadOnly)

		c, err := db.Cursor(tx)
		require.NoError(t, err)
		require.ErrorIs(t, tx.Commit(), store.ErrOpenCursors)
		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
		require.NoError(t, tx.Commit())
		require.ErrorIs(t, tx.Commit(), store.ErrTxnClosed)

		_, _, err = c.First()
		require.Error(t, err)
	})

	t.Run("CustomOrdering", func(t *testing.T) {
		env, db := open(t, core.ReverseBytes)
		Fill(t, env, db, E("a", "1"), E("c", "1"), E("b", "2"), E("b", "1"))
		WithCursor(t, env, db, false, func(_ store.Txn, c store.Cursor) {
			assert.Equal(t, []store.Entry{E("c", "1"), E("b", "1"), E("b", "2"), E("a", "1")}, Scan(t, c))
			e, ok, err := c.SearchKeyRange([]byte("bb"))
			requireEntry(t, E("b", "1"), e, ok, err)
		})

		_, err := env.OpenDatabase("contract", nil)
		require.ErrorIs(t, err, store.ErrOrderingConflict)
		again, err := env.OpenDatabase("contract", core.ReverseBytes)
		require.NoError(t, err)
		assert.Equal(t, "contract", again.Name())
	})

	t.Run("LastSkipsDeletedTail", func(t *testing.T) {
		env, db := open(t, nil)
		WithCursor(t, env, db, false, func(_ store.Txn, c store.Cursor) {
			e, ok, err := c.Last()
			requireMiss(t, e, ok, err)
			e, ok, err = c.Prev()
			requireMiss(t, e, ok, err)
		})

		Fill(t, env, db, E("a", "1"), E("b", "1"), E("b", "2"), E("c", "1"))
		tx, err := env.Begin(true)
		require.NoError(t, err)
		_, err = db.Delete(tx, []byte("c"), []byte("1"))
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		WithCursor(t, env, db, false, func(_ store.Txn, c store.Cursor) {
			e, ok, err := c.Last()
			requireEntry(t, E("b", "2"), e, ok, err)
			e, ok, err = c.Prev()
			requireEntry(t, E("b", "1"), e, ok, err)
		})
		WithCursor(t, env, db, false, func(_ store.Txn, c store.Cursor) {
			e, ok, err := c.Prev()
			requireEntry(t, E("b", "2"), e, ok, err)
		})
	})

	t.Run("ManySmallCommits", func(t *testing.T) {
		env, db := open(t, nil)
		rng := rand.New(rand.NewSource(24))
		model := make(map[string]store.Entry)
		check := func(step int) {
			ids := make([]string, 0, len(model))
			for id := range model {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			want := make([]store.Entry, 0, len(ids))
			for _, id := range ids {
				want = append(want, model[id])
			}
			WithCursor(t, env, db, false, func(_ store.Txn, c store.Cursor) {
				got := Scan(t, c)
				require.Len(t, got, len(want), "after commit %d", step)
				if len(want) > 0 {
					assert.Equal(t, want, got, "after commit %d", step)
				}
			})
		}

		for i := 1; i <= 400; i++ {
			// Keys have a fixed width, so model ids sort like entries.
			key := []byte{'k', byte(rng.Intn(6))}
			value := binary.BigEndian.AppendUint64(nil, uint64(rng.Intn(40)))
			id := string(key) + string(value)

			tx, err := env.Begin(true)
			require.NoError(t, err)
			if i%5 == 0 {
				_, err = db.Delete(tx, key, value)
				delete(model, id)
			} else {
				err = db.Put(tx, key, value)
				model[id] = store.Entry{Key: key, Value: value}
			}
			require.NoError(t, err)
			require.NoError(t, tx.Commit())
			if i%50 == 0 {
				check(i)
			}
		}
	})

	t.Run("CloseIsIdempotent", func(t *testing.T) {
		env := newEnv(t)
		require.NoError(t, env.Close())
		require.NoError(t, env.Close())
		_, err := env.Begin(false)
		require.ErrorIs(t, err, store.ErrEnvClosed)
	})
}
