package index

import (
	"testing"

	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/internal/testutil"
	"github.com/INLOpen/atomindex/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openCursor(t *testing.T, env store.Env, db store.Database, ordering core.KeyOrdering, scope Scope) (*RangeCursor, store.Txn) {
	t.Helper()
	tx, err := env.Begin(false)
	require.NoError(t, err)
	c, err := db.Cursor(tx)
	require.NoError(t, err)
	return NewRangeCursor(c, db.Name(), ordering, scope), tx
}

func keysOf(t *testing.T, rc *RangeCursor) []string {
	t.Helper()
	var out []string
	e, ok, err := rc.First()
	for ; ok; e, ok, err = rc.Advance() {
		out = append(out, string(e.Key)+"="+string(e.Value))
	}
	require.NoError(t, err)
	return out
}

func TestRangeCursorScopes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		db, err := env.OpenDatabase("scoped", nil)
		require.NoError(t, err)
		testutil.Fill(t, env, db,
			testutil.E("a", "1"), testutil.E("b", "1"), testutil.E("b", "2"),
			testutil.E("c", "1"), testutil.E("d", "1"))

		cases := []struct {
			name  string
			scope Scope
			want  []string
			last  string
		}{
			{"all", All(), []string{"a=1", "b=1", "b=2", "c=1", "d=1"}, "d=1"},
			{"key", Key([]byte("b")), []string{"b=1", "b=2"}, "b=2"},
			{"range", Range([]byte("b"), []byte("d")), []string{"b=1", "b=2", "c=1"}, "c=1"},
			{"open low", Range(nil, []byte("b")), []string{"a=1"}, "a=1"},
			{"open high", Range([]byte("bb"), nil), []string{"c=1", "d=1"}, "d=1"},
			{"missing key", Key([]byte("x")), nil, ""},
			{"empty range", Range([]byte("ba"), []byte("bz")), nil, ""},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				rc, tx := openCursor(t, env, db, nil, tc.scope)
				defer tx.Abort()
				defer rc.Close()

				assert.Equal(t, tc.want, keysOf(t, rc))
				e, ok, err := rc.Last()
				require.NoError(t, err)
				if tc.last == "" {
					assert.False(t, ok)
					return
				}
				require.True(t, ok)
				assert.Equal(t, tc.last, string(e.Key)+"="+string(e.Value))
			})
		}
	})
}

func TestRangeCursorMissKeepsPosition(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		db, err := env.OpenDatabase("edges", nil)
		require.NoError(t, err)
		testutil.Fill(t, env, db, testutil.E("a", "1"), testutil.E("b", "1"), testutil.E("c", "1"))

		rc, tx := openCursor(t, env, db, nil, Range([]byte("b"), []byte("c")))
		defer tx.Abort()
		defer rc.Close()

		e, ok, err := rc.First()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "b", string(e.Key))

		_, ok, err = rc.Advance()
		require.NoError(t, err)
		assert.False(t, ok, "c lies outside the range")
		_, ok, err = rc.Retreat()
		require.NoError(t, err)
		assert.False(t, ok, "a lies outside the range")

		e, ok, err = rc.Current()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "b", string(e.Key))
		key, ok := rc.CurrentKey()
		require.True(t, ok)
		assert.Equal(t, "b", string(key))
	})
}

func TestRangeCursorCustomOrdering(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		db, err := env.OpenDatabase("reversed", core.ReverseBytes)
		require.NoError(t, err)
		testutil.Fill(t, env, db, testutil.E("a", "1"), testutil.E("b", "1"), testutil.E("c", "1"), testutil.E("d", "1"))

		// Under the reverse ordering [c, a) holds c and b.
		rc, tx := openCursor(t, env, db, core.ReverseBytes, Range([]byte("c"), []byte("a")))
		defer tx.Abort()
		defer rc.Close()
		assert.Equal(t, []string{"c=1", "b=1"}, keysOf(t, rc))
		e, ok, err := rc.Last()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "b", string(e.Key))
	})
}

func TestRangeCursorLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env store.Env) {
		db, err := env.OpenDatabase("life", nil)
		require.NoError(t, err)
		testutil.Fill(t, env, db, testutil.E("a", "1"), testutil.E("a", "2"))

		rc, tx := openCursor(t, env, db, nil, Key([]byte("a")))
		defer tx.Abort()
		assert.True(t, rc.IsOpen())

		n, err := rc.DuplicateCount()
		require.NoError(t, err)
		assert.Zero(t, n, "never positioned")
		_, ok, err := rc.Advance()
		require.NoError(t, err)
		require.True(t, ok, "an unpositioned cursor advances onto the first entry")
		n, err = rc.DuplicateCount()
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, rc.Close())
		require.NoError(t, rc.Close())
		assert.False(t, rc.IsOpen())

		for name, call := range map[string]func() error{
			"First":   func() error { _, _, err := rc.First(); return err },
			"Last":    func() error { _, _, err := rc.Last(); return err },
			"Advance": func() error { _, _, err := rc.Advance(); return err },
			"Retreat": func() error { _, _, err := rc.Retreat(); return err },
			"Current": func() error { _, _, err := rc.Current(); return err },
			"Search":  func() error { _, _, err := rc.SearchExact([]byte("a"), []byte("1")); return err },
			"Closest": func() error { _, _, err := rc.SearchClosest([]byte("a"), []byte("1")); return err },
			"Delete":  rc.Delete,
			"Count":   func() error { _, err := rc.DuplicateCount(); return err },
		} {
			err := call()
			assert.Truef(t, core.IsUsageError(err), "%s after close: %v", name, err)
			assert.ErrorIs(t, err, core.ErrClosed)
		}
	})
}
