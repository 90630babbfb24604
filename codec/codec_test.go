package codec

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/INLOpen/atomindex/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func roundTrip[T any](t *testing.T, c Codec[T], values []T, eq func(a, b T) bool) {
	t.Helper()
	for _, v := range values {
		b, err := c.Encode(v)
		require.NoError(t, err)
		got, err := c.Decode(b)
		require.NoError(t, err)
		assert.Truef(t, eq(v, got), "round trip changed %v into %v", v, got)
	}
}

func assertOrderPreserved[T any](t *testing.T, c Codec[T], sorted []T) {
	t.Helper()
	require.True(t, PreservesOrder(c))
	encoded := make([][]byte, len(sorted))
	for i, v := range sorted {
		encoded[i] = MustEncode(c, v)
	}
	for i := 1; i < len(encoded); i++ {
		assert.Negativef(t, bytes.Compare(encoded[i-1], encoded[i]), "encodings of %v and %v are out of order", sorted[i-1], sorted[i])
	}
}

func TestRoundTripLaw(t *testing.T) {
	t.Run("Uint64", func(t *testing.T) {
		roundTrip[uint64](t, Uint64{}, []uint64{0, 1, 255, 256, math.MaxUint32, math.MaxUint64}, func(a, b uint64) bool { return a == b })
	})
	t.Run("Int64", func(t *testing.T) {
		roundTrip[int64](t, Int64{}, []int64{math.MinInt64, -1, 0, 1, math.MaxInt64}, func(a, b int64) bool { return a == b })
	})
	t.Run("Float64", func(t *testing.T) {
		roundTrip[float64](t, Float64{}, []float64{math.Inf(-1), -1.5, 0, 1e-300, 3.25, math.MaxFloat64, math.Inf(1)}, func(a, b float64) bool { return a == b })
	})
	t.Run("String", func(t *testing.T) {
		roundTrip[string](t, String{}, []string{"", "a", "héllo", "\x00\xff"}, func(a, b string) bool { return a == b })
	})
	t.Run("Bytes", func(t *testing.T) {
		roundTrip[[]byte](t, Bytes{}, [][]byte{{}, {0}, {1, 2, 3}}, bytes.Equal)
	})
	t.Run("AtomID", func(t *testing.T) {
		roundTrip[core.AtomID](t, AtomID{}, []core.AtomID{0, 7, 1 << 40}, func(a, b core.AtomID) bool { return a == b })
	})
	t.Run("Proto", func(t *testing.T) {
		c := NewProto(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
		roundTrip[*wrapperspb.StringValue](t, c, []*wrapperspb.StringValue{wrapperspb.String(""), wrapperspb.String("node-1")}, func(a, b *wrapperspb.StringValue) bool {
			return proto.Equal(a, b)
		})
		assert.False(t, PreservesOrder(c))
	})
}

func TestOrderPreservingEncodings(t *testing.T) {
	assertOrderPreserved[int64](t, Int64{}, []int64{math.MinInt64, -300, -1, 0, 1, 300, math.MaxInt64})
	assertOrderPreserved[uint64](t, Uint64{}, []uint64{0, 1, 256, 1 << 40, math.MaxUint64})
	assertOrderPreserved[float64](t, Float64{}, []float64{math.Inf(-1), -10.5, -1e-9, 0, 1e-9, 2, math.Inf(1)})
	assertOrderPreserved[string](t, String{}, []string{"", "a", "ab", "b"})
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	_, err := Uint64{}.Decode([]byte{1, 2})
	require.ErrorIs(t, err, ErrShortBuffer)
	_, err = AtomID{}.Decode(nil)
	require.ErrorIs(t, err, ErrShortBuffer)
	_, err = Float64{}.Encode(math.NaN())
	require.Error(t, err)
}

func TestIsRaw(t *testing.T) {
	assert.True(t, IsRaw(Bytes{}))
	assert.True(t, IsRaw(&Bytes{}))
	assert.False(t, IsRaw(String{}))
}

func TestDecodedOrdering(t *testing.T) {
	desc := DecodedOrdering[int64]("int64.desc", Int64{}, func(a, b int64) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	})
	keys := [][]byte{MustEncode[int64](Int64{}, 1), {0x01}, MustEncode[int64](Int64{}, 10), MustEncode[int64](Int64{}, -4)}
	sort.Slice(keys, func(i, j int) bool { return desc.Compare(keys[i], keys[j]) < 0 })

	var got []int64
	for _, k := range keys[:3] {
		v, err := Int64{}.Decode(k)
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []int64{10, 1, -4}, got)
	assert.Equal(t, []byte{0x01}, keys[3], "undecodable keys sort last")
	assert.Equal(t, "int64.desc", desc.Name())
}
