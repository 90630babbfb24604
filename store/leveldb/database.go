package leveldb

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/store"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type database struct {
	env      *Env
	name     string
	ordering core.KeyOrdering
	form     keyForm
}

var _ store.Database = (*database)(nil)

func (d *database) Name() string               { return d.name }
func (d *database) Ordering() core.KeyOrdering { return d.ordering }
func (d *database) orderingName() string       { return core.OrderingName(d.ordering) }

func (d *database) bounds() *util.Range {
	return &util.Range{Start: encodeBound(d.name, tagStart), Limit: encodeBound(d.name, tagEnd)}
}

func has(r reader, key []byte) (bool, error) {
	_, err := r.Get(key, nil)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, leveldb.ErrNotFound):
		return false, nil
	}
	return false, err
}

func (d *database) Put(tx store.Txn, key, value []byte) error {
	t, err := check(d.env, tx, true)
	if err != nil {
		return err
	}
	if err := t.record(d); err != nil {
		return err
	}
	if err := t.tr.Put(encodeEntry(d.form, d.name, key, value), nil, nil); err != nil {
		return fmt.Errorf("leveldb put into %q: %w", d.name, err)
	}
	t.gen++
	return nil
}

func (d *database) Delete(tx store.Txn, key, value []byte) (bool, error) {
	t, err := check(d.env, tx, true)
	if err != nil {
		return false, err
	}
	k := encodeEntry(d.form, d.name, key, value)
	found, err := has(t.tr, k)
	if err != nil {
		return false, fmt.Errorf("leveldb get from %q: %w", d.name, err)
	}
	if !found {
		return false, nil
	}
	if err := t.tr.Delete(k, nil); err != nil {
		return false, fmt.Errorf("leveldb delete from %q: %w", d.name, err)
	}
	t.gen++
	return true, nil
}

func (d *database) DeleteKey(tx store.Txn, key []byte) (int, error) {
	t, err := check(d.env, tx, true)
	if err != nil {
		return 0, err
	}
	var doomed [][]byte
	it := t.tr.NewIterator(d.bounds(), nil)
	for ok := it.Seek(encodeEntry(d.form, d.name, key, nil)); ok; ok = it.Next() {
		p, valid := parseKey(d.form, it.Key())
		if !valid || p.tag != tagEntry || !bytes.Equal(p.key, key) {
			break
		}
		doomed = append(doomed, bytes.Clone(it.Key()))
	}
	err = it.Error()
	it.Release()
	if err != nil {
		return 0, fmt.Errorf("leveldb scan of %q: %w", d.name, err)
	}
	for _, k := range doomed {
		if err := t.tr.Delete(k, nil); err != nil {
			return 0, fmt.Errorf("leveldb delete from %q: %w", d.name, err)
		}
	}
	if len(doomed) > 0 {
		t.gen++
	}
	return len(doomed), nil
}

func (d *database) Cursor(tx store.Txn) (store.Cursor, error) {
	t, err := check(d.env, tx, false)
	if err != nil {
		return nil, err
	}
	t.cursors++
	return &cursor{db: d, tx: t}, nil
}
