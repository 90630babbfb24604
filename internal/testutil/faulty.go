package testutil

import (
	"errors"
	"sync/atomic"

	"github.com/INLOpen/atomindex/store"
)

// ErrInjected is the default error returned by a Faulty database once its
// budget of healthy cursor calls is spent.
var ErrInjected = errors.New("testutil: injected store failure")

// Faulty wraps a database so that cursor calls start failing after a fixed
// number of successful ones. Writes through the database itself are never
// failed.
type Faulty struct {
	store.Database

	// Err is returned once the budget is spent. Defaults to ErrInjected.
	Err error

	budget atomic.Int64
	armed  atomic.Bool
	closes atomic.Int64
}

// NewFaulty returns a disarmed wrapper around db.
func NewFaulty(db store.Database) *Faulty {
	return &Faulty{Database: db}
}

// FailAfter arms the wrapper: the next n cursor calls succeed, every later
// call fails.
func (f *Faulty) FailAfter(n int) {
	f.budget.Store(int64(n))
	f.armed.Store(true)
}

// Disarm lets every call through again.
func (f *Faulty) Disarm() { f.armed.Store(false) }

// Closes reports how many wrapped cursors were closed.
func (f *Faulty) Closes() int { return int(f.closes.Load()) }

func (f *Faulty) fail() error {
	if !f.armed.Load() {
		return nil
	}
	if f.budget.Add(-1) >= 0 {
		return nil
	}
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

func (f *Faulty) Cursor(tx store.Txn) (store.Cursor, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	c, err := f.Database.Cursor(tx)
	if err != nil {
		return nil, err
	}
	return &faultyCursor{Cursor: c, f: f}, nil
}

type faultyCursor struct {
	store.Cursor
	f *Faulty
}

type motion func() (store.Entry, bool, error)

func (c *faultyCursor) wrap(m motion) (store.Entry, bool, error) {
	if err := c.f.fail(); err != nil {
		return store.Entry{}, false, err
	}
	return m()
}

func (c *faultyCursor) Current() (store.Entry, bool, error) { return c.wrap(c.Cursor.Current) }
func (c *faultyCursor) First() (store.Entry, bool, error)   { return c.wrap(c.Cursor.First) }
func (c *faultyCursor) Last() (store.Entry, bool, error)    { return c.wrap(c.Cursor.Last) }
func (c *faultyCursor) Next() (store.Entry, bool, error)    { return c.wrap(c.Cursor.Next) }
func (c *faultyCursor) Prev() (store.Entry, bool, error)    { return c.wrap(c.Cursor.Prev) }
func (c *faultyCursor) NextDup() (store.Entry, bool, error) { return c.wrap(c.Cursor.NextDup) }
func (c *faultyCursor) PrevDup() (store.Entry, bool, error) { return c.wrap(c.Cursor.PrevDup) }

func (c *faultyCursor) NextNoDup() (store.Entry, bool, error) {
	return c.wrap(c.Cursor.NextNoDup)
}

func (c *faultyCursor) SearchKey(key []byte) (store.Entry, bool, error) {
	return c.wrap(func() (store.Entry, bool, error) { return c.Cursor.SearchKey(key) })
}

func (c *faultyCursor) SearchKeyRange(key []byte) (store.Entry, bool, error) {
	return c.wrap(func() (store.Entry, bool, error) { return c.Cursor.SearchKeyRange(key) })
}

func (c *faultyCursor) SearchBoth(key, value []byte) (store.Entry, bool, error) {
	return c.wrap(func() (store.Entry, bool, error) { return c.Cursor.SearchBoth(key, value) })
}

func (c *faultyCursor) SearchBothRange(key, value []byte) (store.Entry, bool, error) {
	return c.wrap(func() (store.Entry, bool, error) { return c.Cursor.SearchBothRange(key, value) })
}

func (c *faultyCursor) Delete() error {
	if err := c.f.fail(); err != nil {
		return err
	}
	return c.Cursor.Delete()
}

func (c *faultyCursor) Count() (int, error) {
	if err := c.f.fail(); err != nil {
		return 0, err
	}
	return c.Cursor.Count()
}

// Close always reaches the underlying cursor so that transactions can
// still be finished after an injected failure.
func (c *faultyCursor) Close() error {
	c.f.closes.Add(1)
	return c.Cursor.Close()
}
