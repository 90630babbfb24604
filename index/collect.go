package index

import (
	"fmt"

	"github.com/INLOpen/atomindex/core"
	"github.com/RoaringBitmap/roaring/roaring64"
)

// CollectIDs drains rs into a bitmap and closes it.
func CollectIDs(rs *ResultSet[core.AtomID]) (*roaring64.Bitmap, error) {
	defer rs.Close()
	bm := roaring64.New()
	for id, err := range rs.All() {
		if err != nil {
			return nil, err
		}
		bm.Add(uint64(id))
	}
	return bm, nil
}

// Intersect returns the values present in every set, in ascending byte
// order of their encodings. The sets are walked in a zig-zag: each one is
// moved with GoTo to the current candidate, and a set landing past it
// proposes the next candidate. Every set must be ordered.
//
// Intersect repositions the sets but does not close them.
func Intersect[T any](sets ...*ResultSet[T]) ([]T, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	for i, rs := range sets {
		if !rs.IsOrdered() {
			return nil, fmt.Errorf("intersect set %d is unordered: %w", i, core.ErrUnsupported)
		}
		if err := rs.GoBeforeFirst(); err != nil {
			return nil, err
		}
		ok, err := rs.HasNext()
		if err != nil || !ok {
			return nil, err
		}
	}

	holder := 0
	candidate, err := sets[holder].Next()
	if err != nil {
		return nil, err
	}
	var out []T
	agree := 1
	j := 1 % len(sets)
	for {
		if agree == len(sets) {
			out = append(out, candidate)
			ok, err := sets[holder].HasNext()
			if err != nil || !ok {
				return out, err
			}
			if candidate, err = sets[holder].Next(); err != nil {
				return out, err
			}
			agree = 1
			j = (holder + 1) % len(sets)
			continue
		}
		res, err := sets[j].GoTo(candidate, false)
		if err != nil {
			return out, err
		}
		switch res {
		case core.GotoNothing:
			return out, nil
		case core.GotoFound:
			agree++
		case core.GotoClose:
			if candidate, err = sets[j].Current(); err != nil {
				return out, err
			}
			holder, agree = j, 1
		}
		j = (j + 1) % len(sets)
	}
}
