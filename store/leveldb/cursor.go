package leveldb

import (
	"bytes"
	"fmt"

	"github.com/INLOpen/atomindex/store"
	"github.com/syndtr/goleveldb/leveldb/iterator"
)

// cursor keeps its position as a decoded entry and re-seeks the leveldb
// iterator on every call. The iterator is rebuilt whenever the owning
// transaction has written since it was created.
type cursor struct {
	db     *database
	tx     *txn
	it     iterator.Iterator
	gen    uint64
	pos    *store.Entry
	closed bool
}

var _ store.Cursor = (*cursor)(nil)

func (c *cursor) valid() error {
	switch {
	case c.closed:
		return store.ErrCursorClosed
	case c.tx.closed:
		return store.ErrTxnClosed
	case c.db.env.isClosed():
		return store.ErrEnvClosed
	}
	return nil
}

func (c *cursor) iter() iterator.Iterator {
	if c.it == nil || c.gen != c.tx.gen {
		if c.it != nil {
			c.it.Release()
		}
		c.it = c.tx.reader().NewIterator(c.db.bounds(), nil)
		c.gen = c.tx.gen
	}
	return c.it
}

// at decodes the entry under the iterator.
func (c *cursor) at(it iterator.Iterator) (store.Entry, bool) {
	p, ok := parseKey(c.db.form, it.Key())
	if !ok || p.tag != tagEntry {
		return store.Entry{}, false
	}
	return store.Entry{Key: bytes.Clone(p.key), Value: bytes.Clone(p.value)}, true
}

func (c *cursor) encodedPos() []byte {
	return encodeEntry(c.db.form, c.db.name, c.pos.Key, c.pos.Value)
}

// move runs step on the iterator and commits the landed entry as the new
// position when accept agrees. Anything else leaves the position as it was.
func (c *cursor) move(op string, step func(it iterator.Iterator) bool, accept func(e store.Entry) bool) (store.Entry, bool, error) {
	if err := c.valid(); err != nil {
		return store.Entry{}, false, err
	}
	it := c.iter()
	if !step(it) {
		if err := it.Error(); err != nil {
			return store.Entry{}, false, fmt.Errorf("leveldb %s on %q: %w", op, c.db.name, err)
		}
		return store.Entry{}, false, nil
	}
	e, ok := c.at(it)
	if !ok || (accept != nil && !accept(e)) {
		return store.Entry{}, false, nil
	}
	c.pos = &e
	return e.Clone(), true, nil
}

func (c *cursor) sameKey(e store.Entry) bool { return bytes.Equal(e.Key, c.pos.Key) }

func (c *cursor) stepAfter(it iterator.Iterator) bool {
	if !it.Seek(c.encodedPos()) {
		return false
	}
	if e, ok := c.at(it); ok && bytes.Equal(e.Key, c.pos.Key) && bytes.Equal(e.Value, c.pos.Value) {
		return it.Next()
	}
	return true
}

func (c *cursor) stepBefore(it iterator.Iterator) bool {
	if it.Seek(c.encodedPos()) {
		return it.Prev()
	}
	return it.Last()
}

func (c *cursor) Current() (store.Entry, bool, error) {
	if err := c.valid(); err != nil {
		return store.Entry{}, false, err
	}
	if c.pos == nil {
		return store.Entry{}, false, nil
	}
	found, err := has(c.tx.reader(), c.encodedPos())
	if err != nil {
		return store.Entry{}, false, fmt.Errorf("leveldb get from %q: %w", c.db.name, err)
	}
	if !found {
		return store.Entry{}, false, nil
	}
	return c.pos.Clone(), true, nil
}

func (c *cursor) First() (store.Entry, bool, error) {
	return c.move("first", iterator.Iterator.First, nil)
}

func (c *cursor) Last() (store.Entry, bool, error) {
	return c.move("last", iterator.Iterator.Last, nil)
}

func (c *cursor) SearchKey(key []byte) (store.Entry, bool, error) {
	return c.move("search key", func(it iterator.Iterator) bool {
		return it.Seek(encodeEntry(c.db.form, c.db.name, key, nil))
	}, func(e store.Entry) bool { return bytes.Equal(e.Key, key) })
}

func (c *cursor) SearchKeyRange(key []byte) (store.Entry, bool, error) {
	return c.move("search key range", func(it iterator.Iterator) bool {
		return it.Seek(encodeEntry(c.db.form, c.db.name, key, nil))
	}, nil)
}

func (c *cursor) SearchBoth(key, value []byte) (store.Entry, bool, error) {
	return c.move("search both", func(it iterator.Iterator) bool {
		return it.Seek(encodeEntry(c.db.form, c.db.name, key, value))
	}, func(e store.Entry) bool { return bytes.Equal(e.Key, key) && bytes.Equal(e.Value, value) })
}

func (c *cursor) SearchBothRange(key, value []byte) (store.Entry, bool, error) {
	return c.move("search both range", func(it iterator.Iterator) bool {
		return it.Seek(encodeEntry(c.db.form, c.db.name, key, value))
	}, func(e store.Entry) bool { return bytes.Equal(e.Key, key) })
}

func (c *cursor) Next() (store.Entry, bool, error) {
	if c.pos == nil {
		return c.First()
	}
	return c.move("next", c.stepAfter, nil)
}

func (c *cursor) Prev() (store.Entry, bool, error) {
	if c.pos == nil {
		return c.Last()
	}
	return c.move("prev", c.stepBefore, nil)
}

func (c *cursor) NextDup() (store.Entry, bool, error) {
	if c.pos == nil {
		return store.Entry{}, false, c.valid()
	}
	return c.move("next dup", c.stepAfter, c.sameKey)
}

func (c *cursor) PrevDup() (store.Entry, bool, error) {
	if c.pos == nil {
		return store.Entry{}, false, c.valid()
	}
	return c.move("prev dup", c.stepBefore, c.sameKey)
}

func (c *cursor) NextNoDup() (store.Entry, bool, error) {
	if c.pos == nil {
		return c.First()
	}
	return c.move("next no dup", func(it iterator.Iterator) bool {
		return it.Seek(encodeAfterKey(c.db.form, c.db.name, c.pos.Key))
	}, nil)
}

func (c *cursor) Delete() error {
	if err := c.valid(); err != nil {
		return err
	}
	if c.tx.tr == nil {
		return store.ErrReadOnly
	}
	if c.pos == nil {
		return store.ErrNotPositioned
	}
	k := c.encodedPos()
	found, err := has(c.tx.tr, k)
	if err != nil {
		return fmt.Errorf("leveldb get from %q: %w", c.db.name, err)
	}
	if !found {
		return fmt.Errorf("entry under cursor already deleted: %w", store.ErrNotPositioned)
	}
	if err := c.tx.tr.Delete(k, nil); err != nil {
		return fmt.Errorf("leveldb delete from %q: %w", c.db.name, err)
	}
	c.tx.gen++
	return nil
}

func (c *cursor) Count() (int, error) {
	if err := c.valid(); err != nil {
		return 0, err
	}
	if c.pos == nil {
		return 0, nil
	}
	it := c.iter()
	n := 0
	for ok := it.Seek(encodeEntry(c.db.form, c.db.name, c.pos.Key, nil)); ok; ok = it.Next() {
		e, valid := c.at(it)
		if !valid || !c.sameKey(e) {
			break
		}
		n++
	}
	if err := it.Error(); err != nil {
		return 0, fmt.Errorf("leveldb count on %q: %w", c.db.name, err)
	}
	return n, nil
}

// Close is idempotent.
func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.it != nil {
		c.it.Release()
		c.it = nil
	}
	c.tx.cursors--
	return nil
}
