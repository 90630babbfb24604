package indexer

import (
	"bytes"
	"errors"
)

const (
	tupleEscape = 0x00
	escapedZero = 0xFF
	partEnd     = 0x01
)

var errBadTuple = errors.New("malformed tuple key")

// EncodeTuple joins parts into one key whose byte order follows the
// lexicographic order of the parts. A 0x00 inside a part is written as
// 0x00 0xFF and every part ends with 0x00 0x01, so a part that is a prefix
// of another sorts first.
func EncodeTuple(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p) + 2
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		for {
			i := bytes.IndexByte(p, tupleEscape)
			if i < 0 {
				buf = append(buf, p...)
				break
			}
			buf = append(buf, p[:i]...)
			buf = append(buf, tupleEscape, escapedZero)
			p = p[i+1:]
		}
		buf = append(buf, tupleEscape, partEnd)
	}
	return buf
}

// DecodeTuple splits a key written by EncodeTuple.
func DecodeTuple(b []byte) ([][]byte, error) {
	var parts [][]byte
	var cur []byte
	for i := 0; i < len(b); i++ {
		if b[i] != tupleEscape {
			cur = append(cur, b[i])
			continue
		}
		if i+1 == len(b) {
			return nil, errBadTuple
		}
		i++
		switch b[i] {
		case escapedZero:
			cur = append(cur, tupleEscape)
		case partEnd:
			if cur == nil {
				cur = []byte{}
			}
			parts = append(parts, cur)
			cur = nil
		default:
			return nil, errBadTuple
		}
	}
	if cur != nil {
		return nil, errBadTuple
	}
	return parts, nil
}
