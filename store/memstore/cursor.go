package memstore

import (
	"bytes"
	"fmt"

	"github.com/INLOpen/atomindex/store"
)

// cursor remembers its position as a (key, value) pair rather than a
// skiplist node, so it survives tombstoning of its own entry and Compact.
type cursor struct {
	db     *database
	tx     *txn
	pos    *entryKey // nil until the first successful positioning
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

// move runs find under the read lock and commits the result as the new
// position. A miss leaves the position unchanged.
func (c *cursor) move(find func() (*entryKey, bool)) (store.Entry, bool, error) {
	c.db.env.mu.RLock()
	defer c.db.env.mu.RUnlock()
	if err := c.valid(); err != nil {
		return store.Entry{}, false, err
	}
	k, ok := find()
	if !ok {
		return store.Entry{}, false, nil
	}
	c.pos = k
	return k.entry(), true, nil
}

func (c *cursor) after(pos *entryKey) (*entryKey, bool) {
	return c.db.scan(pos, false, func(k *entryKey) bool { return c.db.compare(k, pos) <= 0 })
}

func (c *cursor) before(pos *entryKey) (*entryKey, bool) {
	return c.db.scan(pos, true, func(k *entryKey) bool { return c.db.compare(k, pos) >= 0 })
}

func (c *cursor) first() (*entryKey, bool) {
	return c.db.scan(&entryKey{kind: kindFirst}, false, nil)
}

func (c *cursor) last() (*entryKey, bool) {
	return c.db.scan(&entryKey{kind: kindLast}, true, nil)
}

func (c *cursor) Current() (store.Entry, bool, error) {
	c.db.env.mu.RLock()
	defer c.db.env.mu.RUnlock()
	if err := c.valid(); err != nil {
		return store.Entry{}, false, err
	}
	if c.pos == nil || !c.db.isLive(c.pos) {
		return store.Entry{}, false, nil
	}
	return c.pos.entry(), true, nil
}

func (c *cursor) First() (store.Entry, bool, error) { return c.move(c.first) }
func (c *cursor) Last() (store.Entry, bool, error)  { return c.move(c.last) }

func (c *cursor) SearchKey(key []byte) (store.Entry, bool, error) {
	return c.move(func() (*entryKey, bool) {
		k, ok := c.db.scan(&entryKey{Key: key}, false, nil)
		if !ok || !bytes.Equal(k.Key, key) {
			return nil, false
		}
		return k, true
	})
}

func (c *cursor) SearchKeyRange(key []byte) (store.Entry, bool, error) {
	return c.move(func() (*entryKey, bool) {
		return c.db.scan(&entryKey{Key: key}, false, nil)
	})
}

func (c *cursor) SearchBoth(key, value []byte) (store.Entry, bool, error) {
	return c.move(func() (*entryKey, bool) {
		want := &entryKey{Key: key, Value: value}
		k, ok := c.db.scan(want, false, nil)
		if !ok || c.db.compare(k, want) != 0 {
			return nil, false
		}
		return k, true
	})
}

func (c *cursor) SearchBothRange(key, value []byte) (store.Entry, bool, error) {
	return c.move(func() (*entryKey, bool) {
		k, ok := c.db.scan(&entryKey{Key: key, Value: value}, false, nil)
		if !ok || !bytes.Equal(k.Key, key) {
			return nil, false
		}
		return k, true
	})
}

func (c *cursor) Next() (store.Entry, bool, error) {
	return c.move(func() (*entryKey, bool) {
		if c.pos == nil {
			return c.first()
		}
		return c.after(c.pos)
	})
}

func (c *cursor) Prev() (store.Entry, bool, error) {
	return c.move(func() (*entryKey, bool) {
		if c.pos == nil {
			return c.last()
		}
		return c.before(c.pos)
	})
}

func (c *cursor) NextDup() (store.Entry, bool, error) {
	return c.move(func() (*entryKey, bool) {
		if c.pos == nil {
			return nil, false
		}
		k, ok := c.after(c.pos)
		if !ok || !bytes.Equal(k.Key, c.pos.Key) {
			return nil, false
		}
		return k, true
	})
}

func (c *cursor) PrevDup() (store.Entry, bool, error) {
	return c.move(func() (*entryKey, bool) {
		if c.pos == nil {
			return nil, false
		}
		k, ok := c.before(c.pos)
		if !ok || !bytes.Equal(k.Key, c.pos.Key) {
			return nil, false
		}
		return k, true
	})
}

func (c *cursor) NextNoDup() (store.Entry, bool, error) {
	return c.move(func() (*entryKey, bool) {
		if c.pos == nil {
			return c.first()
		}
		return c.db.scan(&entryKey{Key: c.pos.Key, kind: kindAfterKey}, false, nil)
	})
}

func (c *cursor) Delete() error {
	c.db.env.mu.Lock()
	defer c.db.env.mu.Unlock()
	if err := c.valid(); err != nil {
		return err
	}
	if !c.tx.writable {
		return store.ErrReadOnly
	}
	if c.pos == nil {
		return store.ErrNotPositioned
	}
	if !c.db.isLive(c.pos) {
		return fmt.Errorf("entry under cursor already deleted: %w", store.ErrNotPositioned)
	}
	c.tx.undo = append(c.tx.undo, undoRecord{db: c.db, key: c.pos, wasLive: true})
	c.db.setLive(c.pos, false)
	return nil
}

func (c *cursor) Count() (int, error) {
	c.db.env.mu.RLock()
	defer c.db.env.mu.RUnlock()
	if err := c.valid(); err != nil {
		return 0, err
	}
	if c.pos == nil {
		return 0, nil
	}
	return len(c.db.group(c.pos.Key)), nil
}

// Close is idempotent.
func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.tx.cursors--
	return nil
}
