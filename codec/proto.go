package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Proto stores protobuf messages using deterministic marshaling, so equal
// messages always produce equal bytes and exact-match positioning works.
// The encoding carries no useful order; result sets over Proto values
// report themselves as unordered.
type Proto[M proto.Message] struct {
	// New returns an empty message to decode into.
	New func() M
}

// NewProto returns a Proto codec using newFn to allocate messages.
func NewProto[M proto.Message](newFn func() M) Proto[M] {
	return Proto[M]{New: newFn}
}

func (c Proto[M]) Encode(v M) ([]byte, error) {
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal %T: %w", v, err)
	}
	return b, nil
}

func (c Proto[M]) Decode(b []byte) (M, error) {
	m := c.New()
	if err := proto.Unmarshal(b, m); err != nil {
		var zero M
		return zero, fmt.Errorf("codec: unmarshal %T: %w", m, err)
	}
	return m, nil
}

func (Proto[M]) PreservesOrder() bool { return false }
