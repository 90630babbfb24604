package memstore

import (
	"bytes"

	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/store"
	"github.com/INLOpen/skiplist"
)

// database is one named skiplist. All fields below env are guarded by env.mu.
type database struct {
	env      *Env
	name     string
	ordering core.KeyOrdering
	data     *skiplist.SkipList[*entryKey, *entryState]
	live     int
}

var _ store.Database = (*database)(nil)

func (d *database) Name() string               { return d.name }
func (d *database) Ordering() core.KeyOrdering { return d.ordering }

func (d *database) compare(a, b *entryKey) int {
	return newComparator(d.ordering)(a, b)
}

// lookup finds the node holding exactly k, tombstoned or not.
func (d *database) lookup(k *entryKey) (*entryState, bool) {
	node, ok := d.data.Seek(k)
	if !ok {
		return nil, false
	}
	if d.compare(node.Key(), k) != 0 {
		return nil, false
	}
	return node.Value(), true
}

func (d *database) isLive(k *entryKey) bool {
	st, ok := d.lookup(k)
	return ok && !st.Tombstone
}

// setLive marks k live or tombstoned, inserting it when missing.
func (d *database) setLive(k *entryKey, live bool) {
	st, ok := d.lookup(k)
	if !ok {
		if !live {
			return
		}
		d.data.Insert(k, &entryState{})
		d.live++
		return
	}
	if st.Tombstone == !live {
		return
	}
	st.Tombstone = !live
	if live {
		d.live++
	} else {
		d.live--
	}
}

// scan positions a fresh iterator on from and returns the first live entry
// in the iterator's direction that skip does not reject. A reverse scan
// starts at the greatest node <= from.
func (d *database) scan(from *entryKey, reverse bool, skip func(*entryKey) bool) (*entryKey, bool) {
	var it *skiplist.Iterator[*entryKey, *entryState]
	if reverse {
		it = d.data.NewIterator(skiplist.WithReverse[*entryKey, *entryState]())
	} else {
		it = d.data.NewIterator()
	}
	// Seek lands on the first node >= from in both directions.
	ok := it.Seek(from)
	if reverse {
		if !ok {
			ok = it.Last()
		}
		for ok && d.compare(it.Key(), from) > 0 {
			ok = it.Next()
		}
	}
	if !ok {
		return nil, false
	}
	for {
		k := it.Key()
		if k.kind == kindEntry && !it.Value().Tombstone && (skip == nil || !skip(k)) {
			return k, true
		}
		if !it.Next() {
			return nil, false
		}
	}
}

// group returns the live duplicates of key in value order.
func (d *database) group(key []byte) []*entryKey {
	var out []*entryKey
	it := d.data.NewIterator()
	if !it.Seek(&entryKey{Key: key}) {
		return nil
	}
	for {
		k := it.Key()
		if !bytes.Equal(k.Key, key) {
			return out
		}
		if !it.Value().Tombstone {
			out = append(out, k)
		}
		if !it.Next() {
			return out
		}
	}
}

func (d *database) guard(tx store.Txn, write bool) (*txn, error) {
	t, err := check(d.env, tx, write)
	if err != nil {
		return nil, err
	}
	if d.env.isClosed() {
		return nil, store.ErrEnvClosed
	}
	return t, nil
}

func (d *database) Put(tx store.Txn, key, value []byte) error {
	d.env.mu.Lock()
	defer d.env.mu.Unlock()
	t, err := d.guard(tx, true)
	if err != nil {
		return err
	}
	k := newEntryKey(key, value)
	if d.isLive(k) {
		return nil
	}
	t.undo = append(t.undo, undoRecord{db: d, key: k, wasLive: false})
	d.setLive(k, true)
	return nil
}

func (d *database) Delete(tx store.Txn, key, value []byte) (bool, error) {
	d.env.mu.Lock()
	defer d.env.mu.Unlock()
	t, err := d.guard(tx, true)
	if err != nil {
		return false, err
	}
	k := newEntryKey(key, value)
	if !d.isLive(k) {
		return false, nil
	}
	t.undo = append(t.undo, undoRecord{db: d, key: k, wasLive: true})
	d.setLive(k, false)
	return true, nil
}

func (d *database) DeleteKey(tx store.Txn, key []byte) (int, error) {
	d.env.mu.Lock()
	defer d.env.mu.Unlock()
	t, err := d.guard(tx, true)
	if err != nil {
		return 0, err
	}
	dups := d.group(key)
	for _, k := range dups {
		t.undo = append(t.undo, undoRecord{db: d, key: k, wasLive: true})
		d.setLive(k, false)
	}
	return len(dups), nil
}

func (d *database) Cursor(tx store.Txn) (store.Cursor, error) {
	d.env.mu.RLock()
	defer d.env.mu.RUnlock()
	t, err := d.guard(tx, false)
	if err != nil {
		return nil, err
	}
	t.cursors++
	return &cursor{db: d, tx: t}, nil
}
