package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/INLOpen/atomindex/codec"
	"github.com/INLOpen/atomindex/core"
)

var (
	// ErrMissingSnapshot is returned by Unindex when the caller does not
	// supply the atom as it was when it was indexed.
	ErrMissingSnapshot = errors.New("unindex requires the atom snapshot used at index time")

	ErrFrozen        = errors.New("indexer is attached to an index")
	ErrNoType        = errors.New("indexer has no atom type")
	ErrTypeMismatch  = errors.New("atom type does not match indexer")
	ErrNotRegistered = errors.New("indexer is not registered")
)

// Graph gives indexers access to atoms other than the one being indexed.
type Graph interface {
	Get(ctx context.Context, id core.AtomID) (*core.Atom, error)
	// ForEach calls fn for every atom of type typ.
	ForEach(ctx context.Context, typ core.TypeHandle, fn func(core.AtomID, *core.Atom) error) error
}

// Descriptor identifies how an indexer derives keys. Two indexers with
// equal descriptors produce the same keys for the same atom, so a
// Descriptor can be used as a map key and is what the manifest records.
type Descriptor struct {
	Kind     string          `json:"kind"`
	Type     core.TypeHandle `json:"type"`
	Policy   string          `json:"policy"`
	Codec    string          `json:"codec"`
	Ordering string          `json:"ordering"`
}

// DatabaseName is the store database holding the index of d.
func (d Descriptor) DatabaseName() string {
	return fmt.Sprintf("idx/%s/%d/%s/%s/%s", d.Kind, uint64(d.Type), d.Policy, d.Codec, d.Ordering)
}

// signature spells out every field of d, for the policy of indexers built
// from other indexers.
func (d Descriptor) signature() string {
	return fmt.Sprintf("%s(%s)@%d:%s:%s", d.Kind, d.Policy, uint64(d.Type), d.Codec, d.Ordering)
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s(%s) on %s", d.Kind, d.Policy, d.Type)
}

// Indexer derives index keys of type K from atoms of one type.
type Indexer[K any] interface {
	Descriptor() Descriptor
	Type() core.TypeHandle
	// SetType changes the atom type. It fails once the indexer is frozen.
	SetType(h core.TypeHandle) error
	// Freeze makes the indexer immutable. The manager freezes an indexer
	// when it attaches it to an index.
	Freeze()
	Keys(ctx context.Context, g Graph, id core.AtomID, atom *core.Atom) ([]K, error)
	KeyCodec() codec.Codec[K]
	// KeyOrdering returns nil for bytewise order.
	KeyOrdering() core.KeyOrdering
}

// Projection is an indexer seen through its encoded keys.
type Projection interface {
	Descriptor() Descriptor
	EncodedKeys(ctx context.Context, g Graph, id core.AtomID, atom *core.Atom) ([][]byte, error)
}

// Equal reports whether a and b derive keys identically.
func Equal(a, b Projection) bool {
	return a.Descriptor() == b.Descriptor()
}

// Base carries the state every indexer shares.
type Base[K any] struct {
	mu       sync.Mutex
	kind     string
	policy   string
	typ      core.TypeHandle
	frozen   bool
	keys     codec.Codec[K]
	ordering core.KeyOrdering
}

func newBase[K any](kind, policy string, typ core.TypeHandle, keys codec.Codec[K], ordering core.KeyOrdering) Base[K] {
	return Base[K]{kind: kind, policy: policy, typ: typ, keys: keys, ordering: ordering}
}

func (b *Base[K]) Type() core.TypeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.typ
}

func (b *Base[K]) SetType(h core.TypeHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return core.NewUsageError("SetType", ErrFrozen)
	}
	b.typ = h
	return nil
}

func (b *Base[K]) Freeze() {
	b.mu.Lock()
	b.frozen = true
	b.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (b *Base[K]) Frozen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frozen
}

func (b *Base[K]) KeyCodec() codec.Codec[K]      { return b.keys }
func (b *Base[K]) KeyOrdering() core.KeyOrdering { return b.ordering }

func (b *Base[K]) Descriptor() Descriptor {
	return Descriptor{
		Kind:     b.kind,
		Type:     b.Type(),
		Policy:   b.policy,
		Codec:    fmt.Sprintf("%T", b.keys),
		Ordering: core.OrderingName(b.ordering),
	}
}

func encodedKeys[K any](ctx context.Context, idx Indexer[K], g Graph, id core.AtomID, atom *core.Atom) ([][]byte, error) {
	keys, err := idx.Keys(ctx, g, id, atom)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		b, err := idx.KeyCodec().Encode(k)
		if err != nil {
			return nil, fmt.Errorf("%s: encode key: %w", idx.Descriptor(), err)
		}
		out = append(out, b)
	}
	return out, nil
}
