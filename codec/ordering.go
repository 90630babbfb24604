package codec

import (
	"bytes"

	"github.com/INLOpen/atomindex/core"
)

// DecodedOrdering builds a key ordering that decodes both operands with c
// and compares the typed values with cmp. Operands that fail to decode are
// ordered after decodable ones and among themselves bytewise, so the result
// is still a total order.
func DecodedOrdering[T any](name string, c Codec[T], cmp func(a, b T) int) core.KeyOrdering {
	return core.NewKeyOrdering(name, func(a, b []byte) int {
		va, errA := c.Decode(a)
		vb, errB := c.Decode(b)
		switch {
		case errA != nil && errB != nil:
			return bytes.Compare(a, b)
		case errA != nil:
			return 1
		case errB != nil:
			return -1
		}
		return cmp(va, vb)
	})
}
