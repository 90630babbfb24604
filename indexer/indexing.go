package indexer

import (
	"context"
	"fmt"

	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/index"
	"github.com/INLOpen/atomindex/store"
)

var (
	_ Indexer[string]      = (*ByPart[string])(nil)
	_ Indexer[string]      = (*TargetPart[string])(nil)
	_ Indexer[core.AtomID] = (*ByTarget)(nil)
	_ Indexer[core.AtomID] = (*LinkTargets)(nil)
	_ Indexer[[]byte]      = (*Composite)(nil)
	_ Projection           = (*Composite)(nil)
)

func checkAtom[K any](idx Indexer[K], atom *core.Atom) error {
	if idx.Type().IsZero() {
		return fmt.Errorf("%s: %w", idx.Descriptor(), ErrNoType)
	}
	if atom.Type != idx.Type() {
		return fmt.Errorf("%s: atom of %s: %w", idx.Descriptor(), atom.Type, ErrTypeMismatch)
	}
	return nil
}

// Index derives the keys of atom and adds (key, id) to target. It returns
// the number of keys derived.
func Index[K any](ctx context.Context, tx store.Txn, g Graph, idx Indexer[K], id core.AtomID, atom *core.Atom, target *index.Index[K, core.AtomID]) (int, error) {
	if atom == nil {
		return 0, fmt.Errorf("index %s: nil atom", id)
	}
	if err := checkAtom(idx, atom); err != nil {
		return 0, err
	}
	keys, err := idx.Keys(ctx, g, id, atom)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := target.AddEntry(tx, k, id); err != nil {
			return 0, fmt.Errorf("index %s: %w", id, err)
		}
	}
	return len(keys), nil
}

// Unindex removes the entries Index added for atom. atom must be the
// snapshot that was indexed, since keys are derived from it again.
func Unindex[K any](ctx context.Context, tx store.Txn, g Graph, idx Indexer[K], id core.AtomID, atom *core.Atom, target *index.Index[K, core.AtomID]) (int, error) {
	if atom == nil {
		return 0, fmt.Errorf("unindex %s: %w", id, ErrMissingSnapshot)
	}
	if err := checkAtom(idx, atom); err != nil {
		return 0, err
	}
	keys, err := idx.Keys(ctx, g, id, atom)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		ok, err := target.RemoveEntry(tx, k, id)
		if err != nil {
			return removed, fmt.Errorf("unindex %s: %w", id, err)
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}
