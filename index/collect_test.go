package index

import (
	"testing"

	"github.com/INLOpen/atomindex/codec"
	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/internal/testutil"
	"github.com/INLOpen/atomindex/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMembership(t *testing.T, env store.Env) *Index[string, core.AtomID] {
	t.Helper()
	ix, err := Open(env, Options[string, core.AtomID]{
		Name:       "membership",
		KeyCodec:   codec.String{},
		ValueCodec: codec.AtomID{},
		Logger:     testutil.NewTestLogger(),
	})
	require.NoError(t, err)
	return ix
}

func member(t *testing.T, env store.Env, ix *Index[string, core.AtomID], key string, ids ...core.AtomID) {
	t.Helper()
	tx, err := env.Begin(true)
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, ix.AddEntry(tx, key, id))
	}
	require.NoError(t, tx.Commit())
}

func TestCollectIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		ix := openMembership(t, env)
		member(t, env, ix, "red", 3, 1, 4, 1, 5, 9, 2, 6)

		tx := readTxn(t, env)
		defer tx.Abort()
		rs, err := ix.Find(tx, "red")
		require.NoError(t, err)
		bm, err := CollectIDs(rs)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 9}, bm.ToArray())
		assert.False(t, rs.IsOpen())
	})
}

func TestIntersect(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		ix := openMembership(t, env)
		member(t, env, ix, "red", 1, 2, 3, 5, 8, 13, 21)
		member(t, env, ix, "round", 2, 3, 5, 7, 11, 13)
		member(t, env, ix, "small", 1, 3, 5, 13, 34)
		member(t, env, ix, "blue", 4, 6)

		tx := readTxn(t, env)
		defer tx.Abort()
		find := func(key string) *ResultSet[core.AtomID] {
			rs, err := ix.Find(tx, key)
			require.NoError(t, err)
			t.Cleanup(func() { rs.Close() })
			return rs
		}

		got, err := Intersect(find("red"), find("round"))
		require.NoError(t, err)
		assert.Equal(t, []core.AtomID{2, 3, 5, 13}, got)

		got, err = Intersect(find("red"), find("round"), find("small"))
		require.NoError(t, err)
		assert.Equal(t, []core.AtomID{3, 5, 13}, got)

		got, err = Intersect(find("red"), find("blue"))
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = Intersect(find("red"), find("missing"))
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = Intersect(find("small"))
		require.NoError(t, err)
		assert.Equal(t, []core.AtomID{1, 3, 5, 13, 34}, got)

		got, err = Intersect[core.AtomID]()
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
