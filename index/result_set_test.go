package index

import (
	"errors"
	"testing"

	"github.com/INLOpen/atomindex/codec"
	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/internal/testutil"
	"github.com/INLOpen/atomindex/store"
	"github.com/INLOpen/atomindex/store/leveldb"
	"github.com/INLOpen/atomindex/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type backend struct {
	name string
	open func(t *testing.T) store.Env
}

var backends = []backend{
	{"memstore", func(t *testing.T) store.Env {
		return memstore.New(testutil.NewTestLogger())
	}},
	{"leveldb", func(t *testing.T) store.Env {
		env, err := leveldb.OpenInMemory(leveldb.Options{}, testutil.NewTestLogger())
		require.NoError(t, err)
		return env
	}},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, env store.Env)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			env := b.open(t)
			t.Cleanup(func() { _ = env.Close() })
			fn(t, env)
		})
	}
}

func openNumbers(t *testing.T, env store.Env) *Index[string, uint64] {
	t.Helper()
	ix, err := Open(env, Options[string, uint64]{
		Name:       "numbers",
		KeyCodec:   codec.String{},
		ValueCodec: codec.Uint64{},
		Logger:     testutil.NewTestLogger(),
	})
	require.NoError(t, err)
	return ix
}

// fill adds every value under key in one committed transaction.
func fill(t *testing.T, env store.Env, ix *Index[string, uint64], key string, values ...uint64) {
	t.Helper()
	tx, err := env.Begin(true)
	require.NoError(t, err)
	for _, v := range values {
		require.NoError(t, ix.AddEntry(tx, key, v))
	}
	require.NoError(t, tx.Commit())
}

func readTxn(t *testing.T, env store.Env) store.Txn {
	t.Helper()
	tx, err := env.Begin(false)
	require.NoError(t, err)
	return tx
}

func drain(t *testing.T, rs *ResultSet[uint64]) []uint64 {
	t.Helper()
	var out []uint64
	for {
		ok, err := rs.HasNext()
		require.NoError(t, err)
		if !ok {
			return out
		}
		v, err := rs.Next()
		require.NoError(t, err)
		out = append(out, v)
	}
}

func TestExhaustiveTraversal(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		ix := openNumbers(t, env)
		fill(t, env, ix, "a", 1)
		fill(t, env, ix, "k", 9, 3, 7, 5)
		fill(t, env, ix, "z", 2)

		tx := readTxn(t, env)
		defer tx.Abort()
		rs, err := ix.Find(tx, "k")
		require.NoError(t, err)
		defer rs.Close()

		assert.Equal(t, []uint64{3, 5, 7, 9}, drain(t, rs))
		_, err = rs.Next()
		require.ErrorIs(t, err, core.ErrEndOfSequence)

		require.NoError(t, rs.GoBeforeFirst())
		assert.Equal(t, []uint64{3, 5, 7, 9}, drain(t, rs), "traversal is repeatable")
	})
}

func TestBackwardTraversal(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		ix := openNumbers(t, env)
		fill(t, env, ix, "a", 1)
		fill(t, env, ix, "k", 3, 5, 7)
		fill(t, env, ix, "z", 2)

		tx := readTxn(t, env)
		defer tx.Abort()
		rs, err := ix.Find(tx, "k")
		require.NoError(t, err)
		defer rs.Close()

		require.NoError(t, rs.GoAfterLast())
		ok, err := rs.HasNext()
		require.NoError(t, err)
		assert.False(t, ok)

		var got []uint64
		for {
			ok, err := rs.HasPrev()
			require.NoError(t, err)
			if !ok {
				break
			}
			v, err := rs.Prev()
			require.NoError(t, err)
			got = append(got, v)
		}
		assert.Equal(t, []uint64{7, 5, 3}, got)
		_, err = rs.Prev()
		require.ErrorIs(t, err, core.ErrEndOfSequence)
	})
}

func drainBackward(t *testing.T, rs *ResultSet[uint64]) []uint64 {
	t.Helper()
	require.NoError(t, rs.GoAfterLast())
	var out []uint64
	for {
		ok, err := rs.HasPrev()
		require.NoError(t, err)
		if !ok {
			return out
		}
		v, err := rs.Prev()
		require.NoError(t, err)
		out = append(out, v)
	}
}

// The greatest key of the index ends at the end of the store, so its last
// entry is found from the end rather than from a following key.
func TestBackwardTraversalFromStoreEnd(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		ix := openNumbers(t, env)
		fill(t, env, ix, "a", 1, 4)
		fill(t, env, ix, "k", 3, 5)

		tx := readTxn(t, env)
		defer tx.Abort()

		all, err := ix.ScanValues(tx)
		require.NoError(t, err)
		defer all.Close()
		assert.Equal(t, []uint64{5, 3, 4, 1}, drainBackward(t, all))

		last, err := ix.Find(tx, "k")
		require.NoError(t, err)
		defer last.Close()
		assert.Equal(t, []uint64{5, 3}, drainBackward(t, last))

		open, err := ix.Scan(tx, Range([]byte("b"), nil))
		require.NoError(t, err)
		defer open.Close()
		assert.Equal(t, []uint64{5, 3}, drainBackward(t, open))
	})
}

func TestNavigationSymmetry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		ix := openNumbers(t, env)
		values := []uint64{10, 20, 30, 40, 50}
		fill(t, env, ix, "k", values...)

		tx := readTxn(t, env)
		defer tx.Abort()
		rs, err := ix.Find(tx, "k")
		require.NoError(t, err)
		defer rs.Close()

		for i := 1; i < len(values)-1; i++ {
			require.NoError(t, rs.GoBeforeFirst())
			for j := 0; j <= i; j++ {
				_, err := rs.Next()
				require.NoError(t, err)
			}
			v, err := rs.Next()
			require.NoError(t, err)
			assert.Equal(t, values[i+1], v)
			v, err = rs.Prev()
			require.NoError(t, err)
			assert.Equal(t, values[i], v, "next then prev returns to entry %d", i)

			v, err = rs.Prev()
			require.NoError(t, err)
			assert.Equal(t, values[i-1], v)
			v, err = rs.Next()
			require.NoError(t, err)
			assert.Equal(t, values[i], v, "prev then next returns to entry %d", i)
		}

		// Zig-zag through the whole set after looking ahead in both directions.
		require.NoError(t, rs.GoAfterLast())
		v, err := rs.Prev()
		require.NoError(t, err)
		assert.Equal(t, uint64(50), v)
		_, err = rs.HasNext()
		require.NoError(t, err)
		v, err = rs.Prev()
		require.NoError(t, err)
		assert.Equal(t, uint64(40), v)
		v, err = rs.Next()
		require.NoError(t, err)
		assert.Equal(t, uint64(50), v)
	})
}

func TestIdempotentLookahead(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		ix := openNumbers(t, env)
		fill(t, env, ix, "k", 1, 2, 3)

		tx := readTxn(t, env)
		defer tx.Abort()
		rs, err := ix.Find(tx, "k")
		require.NoError(t, err)
		defer rs.Close()

		_, err = rs.Next()
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			ok, err := rs.HasNext()
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = rs.HasPrev()
			require.NoError(t, err)
			assert.False(t, ok)
		}
		cur, err := rs.Current()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), cur)
		v, err := rs.Next()
		require.NoError(t, err)
		assert.Equal(t, uint64(2), v)
	})
}

func TestEmptyRange(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		ix := openNumbers(t, env)
		fill(t, env, ix, "a", 1)

		tx := readTxn(t, env)
		defer tx.Abort()
		rs, err := ix.Find(tx, "missing")
		require.NoError(t, err)
		defer rs.Close()

		require.NoError(t, rs.GoBeforeFirst())
		ok, err := rs.HasNext()
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = rs.HasPrev()
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = rs.Current()
		var usage *core.UsageError
		require.ErrorAs(t, err, &usage)
		assert.ErrorIs(t, err, core.ErrNotPositioned)

		n, err := ix.Count(tx, "missing")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestGoToExact(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		ix := openNumbers(t, env)
		fill(t, env, ix, "k", 3, 7, 9)

		tx := readTxn(t, env)
		defer tx.Abort()
		rs, err := ix.Find(tx, "k")
		require.NoError(t, err)
		defer rs.Close()

		res, err := rs.GoTo(7, true)
		require.NoError(t, err)
		assert.Equal(t, core.GotoFound, res)
		cur, err := rs.Current()
		require.NoError(t, err)
		assert.Equal(t, uint64(7), cur)

		res, err = rs.GoTo(8, true)
		require.NoError(t, err)
		assert.Equal(t, core.GotoNothing, res)

		// The window is rebuilt around the found entry.
		res, err = rs.GoTo(7, true)
		require.NoError(t, err)
		require.Equal(t, core.GotoFound, res)
		v, err := rs.Prev()
		require.NoError(t, err)
		assert.Equal(t, uint64(3), v)
	})
}

func TestGoToClosest(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		ix := openNumbers(t, env)
		fill(t, env, ix, "k", 3, 7, 9)
		fill(t, env, ix, "l", 100)

		tx := readTxn(t, env)
		defer tx.Abort()
		rs, err := ix.Find(tx, "k")
		require.NoError(t, err)
		defer rs.Close()

		res, err := rs.GoTo(5, false)
		require.NoError(t, err)
		assert.Equal(t, core.GotoClose, res)
		cur, err := rs.Current()
		require.NoError(t, err)
		assert.Equal(t, uint64(7), cur)

		res, err = rs.GoTo(7, false)
		require.NoError(t, err)
		assert.Equal(t, core.GotoFound, res)

		res, err = rs.GoTo(10, false)
		require.NoError(t, err)
		assert.Equal(t, core.GotoNothing, res, "values under other keys are never reached")

		v, err := rs.Next()
		require.NoError(t, err)
		assert.Equal(t, uint64(9), v, "a miss leaves the position unchanged")
	})
}

func TestGoToOutsideKeyScope(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		ix := openNumbers(t, env)
		fill(t, env, ix, "a", 1, 5)
		fill(t, env, ix, "b", 2, 4)

		tx := readTxn(t, env)
		defer tx.Abort()
		rs, err := ix.ScanValues(tx)
		require.NoError(t, err)
		defer rs.Close()

		res, err := rs.GoTo(4, false)
		require.NoError(t, err, "positioning before the first entry lands the cursor on key a")
		assert.Equal(t, core.GotoClose, res)
		cur, err := rs.Current()
		require.NoError(t, err)
		assert.Equal(t, uint64(5), cur)

		all, err := ix.Scan(tx, Range([]byte("x"), nil))
		require.NoError(t, err)
		defer all.Close()
		_, err = all.GoTo(1, true)
		require.ErrorIs(t, err, core.ErrNoKey)
	})
}

func TestRemovalInvalidation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		ix := openNumbers(t, env)
		fill(t, env, ix, "k", 1, 2, 3)

		tx, err := env.Begin(true)
		require.NoError(t, err)
		rs, err := ix.Find(tx, "k")
		require.NoError(t, err)

		v, err := rs.Next()
		require.NoError(t, err)
		v, err = rs.Next()
		require.NoError(t, err)
		require.Equal(t, uint64(2), v)
		require.NoError(t, rs.RemoveCurrent())

		_, err = rs.Next()
		require.ErrorIs(t, err, core.ErrInvalidated)
		assert.True(t, core.IsUsageError(err))
		_, err = rs.Prev()
		require.ErrorIs(t, err, core.ErrInvalidated)
		require.ErrorIs(t, rs.RemoveCurrent(), core.ErrInvalidated)
		assert.True(t, rs.IsOpen(), "removal does not close the set")

		res, err := rs.GoTo(3, true)
		require.NoError(t, err)
		assert.Equal(t, core.GotoFound, res)
		v, err = rs.Prev()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), v)

		require.NoError(t, rs.Close())
		require.NoError(t, tx.Commit())

		rtx := readTxn(t, env)
		defer rtx.Abort()
		rs, err = ix.Find(rtx, "k")
		require.NoError(t, err)
		defer rs.Close()
		assert.Equal(t, []uint64{1, 3}, drain(t, rs))
	})
}

func TestDuplicateCounting(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		ix := openNumbers(t, env)
		fill(t, env, ix, "a", 1)
		fill(t, env, ix, "k", 5, 6, 7, 8)
		fill(t, env, ix, "z", 1, 2)

		tx := readTxn(t, env)
		defer tx.Abort()
		rs, err := ix.Find(tx, "k")
		require.NoError(t, err)
		defer rs.Close()

		for {
			n, err := rs.Count()
			require.NoError(t, err)
			assert.Equal(t, 4, n)
			ok, err := rs.HasNext()
			require.NoError(t, err)
			if !ok {
				break
			}
			_, err = rs.Next()
			require.NoError(t, err)
		}
		n, err := ix.Count(tx, "z")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestStoreFailureClosesResultSet(t *testing.T) {
	env := memstore.New(testutil.NewTestLogger())
	defer env.Close()
	ix := openNumbers(t, env)
	fill(t, env, ix, "k", 1, 2, 3)

	faulty := testutil.NewFaulty(ix.db)
	ix.db = faulty

	tx := readTxn(t, env)
	rs, err := ix.Find(tx, "k")
	require.NoError(t, err)
	_, err = rs.Next()
	require.NoError(t, err)

	faulty.FailAfter(0)
	_, err = rs.Next()
	require.ErrorIs(t, err, testutil.ErrInjected)
	var se *core.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "numbers", se.Index)
	assert.False(t, rs.IsOpen())
	assert.Equal(t, 1, faulty.Closes())

	_, err = rs.Next()
	require.ErrorIs(t, err, core.ErrClosed)
	require.NoError(t, rs.Close())
	assert.Equal(t, 1, faulty.Closes(), "the cursor is released once")
	require.NoError(t, tx.Abort())

	faulty.Disarm()
	tx = readTxn(t, env)
	defer tx.Abort()
	faulty.FailAfter(1)
	_, err = ix.Find(tx, "k")
	require.True(t, core.IsStoreError(err))
}

func TestClosedResultSet(t *testing.T) {
	env := memstore.New(testutil.NewTestLogger())
	defer env.Close()
	ix := openNumbers(t, env)
	fill(t, env, ix, "k", 1)

	tx := readTxn(t, env)
	defer tx.Abort()
	rs, err := ix.Find(tx, "k")
	require.NoError(t, err)
	require.NoError(t, rs.Close())
	require.NoError(t, rs.Close())

	_, err = rs.HasNext()
	require.ErrorIs(t, err, core.ErrClosed)
	_, err = rs.Current()
	require.ErrorIs(t, err, core.ErrClosed)
	require.ErrorIs(t, rs.GoBeforeFirst(), core.ErrClosed)
	_, err = rs.GoTo(1, true)
	require.ErrorIs(t, err, core.ErrClosed)
	_, err = rs.Count()
	require.ErrorIs(t, err, core.ErrClosed)
}

func TestRemoveUnsupported(t *testing.T) {
	env := memstore.New(nil)
	defer env.Close()
	ix := openNumbers(t, env)
	tx := readTxn(t, env)
	defer tx.Abort()
	rs, err := ix.ScanValues(tx)
	require.NoError(t, err)
	defer rs.Close()
	require.ErrorIs(t, rs.Remove(), core.ErrUnsupported)
}

func TestAllIterator(t *testing.T) {
	env := memstore.New(nil)
	defer env.Close()
	ix := openNumbers(t, env)
	fill(t, env, ix, "a", 4, 2)
	fill(t, env, ix, "b", 1)

	tx := readTxn(t, env)
	defer tx.Abort()
	rs, err := ix.ScanValues(tx)
	require.NoError(t, err)
	defer rs.Close()

	var got []uint64
	for v, err := range rs.All() {
		require.NoError(t, err)
		got = append(got, v)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []uint64{2, 4}, got)
}

func TestOrderedFollowsValueCodec(t *testing.T) {
	env := memstore.New(nil)
	defer env.Close()
	ordered := openNumbers(t, env)
	assert.True(t, ordered.IsOrdered())

	unordered, err := Open(env, Options[string, *wrapperspb.StringValue]{
		Name:       "labels",
		KeyCodec:   codec.String{},
		ValueCodec: codec.NewProto(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }),
	})
	require.NoError(t, err)
	assert.False(t, unordered.IsOrdered())

	tx, err := env.Begin(true)
	require.NoError(t, err)
	require.NoError(t, unordered.AddEntry(tx, "k", wrapperspb.String("v")))
	rs, err := unordered.Find(tx, "k")
	require.NoError(t, err)
	assert.False(t, rs.IsOrdered())
	v, err := rs.Next()
	require.NoError(t, err)
	assert.Equal(t, "v", v.GetValue())

	_, err = Intersect(rs)
	require.True(t, errors.Is(err, core.ErrUnsupported))
	require.NoError(t, rs.Close())
	require.NoError(t, tx.Commit())
}
