package core

import (
	"bytes"
	"strconv"
)

// AtomID is the persistent identifier of an atom.
type AtomID uint64

func (id AtomID) String() string {
	return "atom:" + strconv.FormatUint(uint64(id), 10)
}

// TypeHandle identifies an atom type. The zero value means "unset".
type TypeHandle uint64

func (h TypeHandle) String() string {
	return "type:" + strconv.FormatUint(uint64(h), 10)
}

// IsZero reports whether the handle is unset.
func (h TypeHandle) IsZero() bool { return h == 0 }

// Atom is a stored record as seen by indexers. Value holds the record
// payload (a scalar or a map[string]any for structured records) and
// Targets the target set when the atom is a link.
type Atom struct {
	Type    TypeHandle
	Value   any
	Targets []AtomID
}

// IsLink reports whether the atom points at other atoms.
func (a *Atom) IsLink() bool { return a != nil && len(a.Targets) > 0 }

// KeyOrdering compares serialized keys. Implementations receive raw bytes
// and are responsible for decoding them if they need typed comparison.
// The name is persisted alongside index configuration and must uniquely
// identify the ordering.
type KeyOrdering interface {
	Name() string
	Compare(a, b []byte) int
}

type funcOrdering struct {
	name string
	fn   func(a, b []byte) int
}

func (o funcOrdering) Name() string            { return o.name }
func (o funcOrdering) Compare(a, b []byte) int { return o.fn(a, b) }

// NewKeyOrdering wraps a comparison function under a stable name.
func NewKeyOrdering(name string, fn func(a, b []byte) int) KeyOrdering {
	return funcOrdering{name: name, fn: fn}
}

// ReverseBytes orders keys by descending byte-lexicographic order.
var ReverseBytes = NewKeyOrdering("bytes.reverse", func(a, b []byte) int {
	return bytes.Compare(b, a)
})

// CompareKeys compares two keys under ordering, falling back to
// byte-lexicographic order when ordering is nil.
func CompareKeys(ordering KeyOrdering, a, b []byte) int {
	if ordering == nil {
		return bytes.Compare(a, b)
	}
	return ordering.Compare(a, b)
}

// OrderingName returns the persisted name of ordering, "bytes" for nil.
func OrderingName(ordering KeyOrdering) string {
	if ordering == nil {
		return "bytes"
	}
	return ordering.Name()
}

// GotoResult reports the outcome of positioning a result set by value.
type GotoResult int

const (
	// GotoNothing means no suitable entry exists.
	GotoNothing GotoResult = iota
	// GotoFound means the cursor sits on an entry byte-equal to the target.
	GotoFound
	// GotoClose means the cursor sits on the next greater entry.
	GotoClose
)

func (r GotoResult) String() string {
	switch r {
	case GotoFound:
		return "found"
	case GotoClose:
		return "close"
	case GotoNothing:
		return "nothing"
	default:
		return "unknown"
	}
}
