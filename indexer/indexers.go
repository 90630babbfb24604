package indexer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/INLOpen/atomindex/codec"
	"github.com/INLOpen/atomindex/core"
)

// PartOptions configures the indexers that project a field of an atom value.
type PartOptions[K any] struct {
	Type core.TypeHandle
	// Path walks nested map[string]any values. An empty path projects the
	// whole value.
	Path     []string
	Codec    codec.Codec[K]
	Ordering core.KeyOrdering
}

// project returns the value at path, or false when some step is missing.
func project(v any, path []string) (any, bool) {
	for _, p := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok = m[p]; !ok {
			return nil, false
		}
	}
	return v, true
}

// keysOf converts a projected value to keys. A []K or []any projection is
// multi-valued.
func keysOf[K any](d Descriptor, v any) ([]K, error) {
	switch x := v.(type) {
	case K:
		return []K{x}, nil
	case []K:
		return x, nil
	case []any:
		out := make([]K, 0, len(x))
		for _, e := range x {
			k, ok := e.(K)
			if !ok {
				return nil, fmt.Errorf("%s: element of type %T is not a key", d, e)
			}
			out = append(out, k)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s: value of type %T is not a key", d, v)
}

// ByPart indexes atoms by a field of their value. Atoms without the field
// produce no keys.
type ByPart[K any] struct {
	Base[K]
	path []string
}

func NewByPart[K any](opts PartOptions[K]) *ByPart[K] {
	return &ByPart[K]{
		Base: newBase("by-part", strings.Join(opts.Path, "."), opts.Type, opts.Codec, opts.Ordering),
		path: opts.Path,
	}
}

func (p *ByPart[K]) Keys(_ context.Context, _ Graph, _ core.AtomID, atom *core.Atom) ([]K, error) {
	v, ok := project(atom.Value, p.path)
	if !ok {
		return nil, nil
	}
	return keysOf[K](p.Descriptor(), v)
}

func (p *ByPart[K]) EncodedKeys(ctx context.Context, g Graph, id core.AtomID, atom *core.Atom) ([][]byte, error) {
	return encodedKeys[K](ctx, p, g, id, atom)
}

// TargetPart indexes links by a field of the atom at one target position.
// The target is read through the graph.
type TargetPart[K any] struct {
	Base[K]
	position int
	path     []string
}

func NewTargetPart[K any](opts PartOptions[K], position int) *TargetPart[K] {
	policy := strconv.Itoa(position) + ":" + strings.Join(opts.Path, ".")
	return &TargetPart[K]{
		Base:     newBase("target-part", policy, opts.Type, opts.Codec, opts.Ordering),
		position: position,
		path:     opts.Path,
	}
}

func (p *TargetPart[K]) Keys(ctx context.Context, g Graph, _ core.AtomID, atom *core.Atom) ([]K, error) {
	if p.position < 0 || p.position >= len(atom.Targets) {
		return nil, nil
	}
	target, err := g.Get(ctx, atom.Targets[p.position])
	if err != nil {
		return nil, fmt.Errorf("%s: load target %s: %w", p.Descriptor(), atom.Targets[p.position], err)
	}
	if target == nil {
		return nil, nil
	}
	v, ok := project(target.Value, p.path)
	if !ok {
		return nil, nil
	}
	return keysOf[K](p.Descriptor(), v)
}

func (p *TargetPart[K]) EncodedKeys(ctx context.Context, g Graph, id core.AtomID, atom *core.Atom) ([][]byte, error) {
	return encodedKeys[K](ctx, p, g, id, atom)
}

// ByTarget indexes links by the target at one position.
type ByTarget struct {
	Base[core.AtomID]
	position int
}

func NewByTarget(typ core.TypeHandle, position int) *ByTarget {
	return &ByTarget{
		Base:     newBase[core.AtomID]("by-target", strconv.Itoa(position), typ, codec.AtomID{}, nil),
		position: position,
	}
}

func (b *ByTarget) Keys(_ context.Context, _ Graph, _ core.AtomID, atom *core.Atom) ([]core.AtomID, error) {
	if b.position < 0 || b.position >= len(atom.Targets) {
		return nil, nil
	}
	return []core.AtomID{atom.Targets[b.position]}, nil
}

func (b *ByTarget) EncodedKeys(ctx context.Context, g Graph, id core.AtomID, atom *core.Atom) ([][]byte, error) {
	return encodedKeys[core.AtomID](ctx, b, g, id, atom)
}

// LinkTargets indexes links under every one of their targets.
type LinkTargets struct {
	Base[core.AtomID]
}

func NewLinkTargets(typ core.TypeHandle) *LinkTargets {
	return &LinkTargets{Base: newBase[core.AtomID]("link-targets", "*", typ, codec.AtomID{}, nil)}
}

func (l *LinkTargets) Keys(_ context.Context, _ Graph, _ core.AtomID, atom *core.Atom) ([]core.AtomID, error) {
	return append([]core.AtomID(nil), atom.Targets...), nil
}

func (l *LinkTargets) EncodedKeys(ctx context.Context, g Graph, id core.AtomID, atom *core.Atom) ([][]byte, error) {
	return encodedKeys[core.AtomID](ctx, l, g, id, atom)
}

// Composite indexes atoms by the tuple of the encoded keys of its parts.
// Multi-valued parts yield one key per combination; an atom for which some
// part has no key is not indexed.
type Composite struct {
	Base[[]byte]
	parts []Projection
}

func NewComposite(typ core.TypeHandle, parts ...Projection) *Composite {
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.Descriptor().signature()
	}
	return &Composite{
		Base:  newBase[[]byte]("composite", strings.Join(names, "+"), typ, codec.Bytes{}, nil),
		parts: parts,
	}
}

func (c *Composite) Keys(ctx context.Context, g Graph, id core.AtomID, atom *core.Atom) ([][]byte, error) {
	combos := [][][]byte{nil}
	for _, p := range c.parts {
		keys, err := p.EncodedKeys(ctx, g, id, atom)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return nil, nil
		}
		next := make([][][]byte, 0, len(combos)*len(keys))
		for _, prefix := range combos {
			for _, k := range keys {
				next = append(next, append(prefix[:len(prefix):len(prefix)], k))
			}
		}
		combos = next
	}
	out := make([][]byte, len(combos))
	for i, parts := range combos {
		out[i] = EncodeTuple(parts...)
	}
	return out, nil
}

func (c *Composite) EncodedKeys(ctx context.Context, g Graph, id core.AtomID, atom *core.Atom) ([][]byte, error) {
	return encodedKeys[[]byte](ctx, c, g, id, atom)
}
