// Package codec converts typed index keys and values to and from the byte
// form stored in an index.
//
// Codec choice is a persistence boundary: bytes written by one codec can
// only be read back by the same codec. Codecs marked order preserving
// produce encodings whose byte-lexicographic order matches the natural
// order of the values, which is what makes index traversal ordered.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/INLOpen/atomindex/core"
)

// ErrShortBuffer is returned when a fixed-width value is decoded from a
// buffer of the wrong size.
var ErrShortBuffer = errors.New("codec: buffer has wrong length")

// Codec converts between a typed value and its serialized bytes.
// Decode(Encode(v)) must equal v for every v in the supported domain.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

// OrderPreserving is implemented by codecs that declare whether the byte
// order of their encodings matches the order of the decoded values.
type OrderPreserving interface {
	PreservesOrder() bool
}

// PreservesOrder reports whether c declares an order preserving encoding.
func PreservesOrder(c any) bool {
	op, ok := c.(OrderPreserving)
	return ok && op.PreservesOrder()
}

// Bytes is the identity codec. It doubles as the "keys are raw bytes
// already" marker returned by indexers whose keys need no conversion.
type Bytes struct{}

func (Bytes) Encode(v []byte) ([]byte, error) { return bytes.Clone(v), nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return bytes.Clone(b), nil }
func (Bytes) PreservesOrder() bool            { return true }

// IsRaw reports whether c is the raw bytes marker.
func IsRaw(c any) bool {
	switch c.(type) {
	case Bytes, *Bytes:
		return true
	}
	return false
}

// String stores UTF-8 strings verbatim.
type String struct{}

func (String) Encode(v string) ([]byte, error) { return []byte(v), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
func (String) PreservesOrder() bool            { return true }

// Uint64 stores unsigned integers as 8 big-endian bytes.
type Uint64 struct{}

func (Uint64) Encode(v uint64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), v), nil
}

func (Uint64) Decode(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("uint64 of %d bytes: %w", len(b), ErrShortBuffer)
	}
	return binary.BigEndian.Uint64(b), nil
}

func (Uint64) PreservesOrder() bool { return true }

// Int64 flips the sign bit so that negative numbers sort first.
type Int64 struct{}

func (Int64) Encode(v int64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), uint64(v)^(1<<63)), nil
}

func (Int64) Decode(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("int64 of %d bytes: %w", len(b), ErrShortBuffer)
	}
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63)), nil
}

func (Int64) PreservesOrder() bool { return true }

// Float64 uses the IEEE-754 total-order trick: positive numbers get the
// sign bit set, negative numbers are bitwise inverted. NaN is rejected.
type Float64 struct{}

func (Float64) Encode(v float64) ([]byte, error) {
	if math.IsNaN(v) {
		return nil, errors.New("codec: NaN has no ordered encoding")
	}
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), bits), nil
}

func (Float64) Decode(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("float64 of %d bytes: %w", len(b), ErrShortBuffer)
	}
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}

func (Float64) PreservesOrder() bool { return true }

// AtomID stores atom identifiers as 8 big-endian bytes, so duplicate
// entries under one key are kept in ascending id order.
type AtomID struct{}

func (AtomID) Encode(v core.AtomID) ([]byte, error) {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), uint64(v)), nil
}

func (AtomID) Decode(b []byte) (core.AtomID, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("atom id of %d bytes: %w", len(b), ErrShortBuffer)
	}
	return core.AtomID(binary.BigEndian.Uint64(b)), nil
}

func (AtomID) PreservesOrder() bool { return true }

// MustEncode encodes v and panics on failure. Intended for constants and
// tests where the codec cannot fail.
func MustEncode[T any](c Codec[T], v T) []byte {
	b, err := c.Encode(v)
	if err != nil {
		panic(fmt.Sprintf("codec: encode %v: %v", v, err))
	}
	return b
}
