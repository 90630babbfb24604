package leveldb

import (
	"fmt"

	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/store"
)

// Every named database shares one leveldb keyspace compared bytewise. A
// stored key is
//
//	part(db) tag [part(key) value]
//
// and the leveldb value is empty. part escapes one byte and ends with a
// two-byte terminator, so no encoded part is a prefix of another and the
// encoding sorts like the fields it holds. The key part is present only
// for tagEntry; the other tags are iteration bounds.
const (
	tagStart byte = 0x01 // before every entry of db
	tagEntry byte = 0x02 // a real (key, value) pair
	tagEnd   byte = 0x03 // after every entry of db
)

// Second terminator byte: an entry's key part, or the bound after every
// duplicate of a key.
const (
	termEntry    byte = 0x01
	termAfterKey byte = 0x02
)

// metaDB records the ordering name of every database that has been written.
const metaDB = "__atomindex_meta"

// keyForm maps a key ordering onto bytewise order. Every key byte is
// XORed with mask; the byte equal to special is escaped as special,
// ^special and a part ends with special, term.
//
// With mask 0x00 the parts sort bytewise. With mask 0xFF they sort in
// reverse: complemented bytes compare inverted, and a terminator starting
// with 0xFF puts every key after its own extensions.
type keyForm struct {
	mask    byte
	special byte
}

var (
	bytewiseForm = keyForm{mask: 0x00, special: 0x00}
	reverseForm  = keyForm{mask: 0xFF, special: 0xFF}
)

// formFor returns the encoding for ordering. Only orderings with a bytewise
// equivalent can be stored, because leveldb compares raw keys.
func formFor(ordering core.KeyOrdering) (keyForm, error) {
	switch name := core.OrderingName(ordering); name {
	case core.OrderingName(nil):
		return bytewiseForm, nil
	case core.ReverseBytes.Name():
		return reverseForm, nil
	default:
		return keyForm{}, fmt.Errorf("leveldb cannot store ordering %q: %w", name, store.ErrUnsupportedOrdering)
	}
}

func (f keyForm) appendPart(dst, b []byte, term byte) []byte {
	for _, c := range b {
		c ^= f.mask
		if c == f.special {
			dst = append(dst, f.special, ^f.special)
			continue
		}
		dst = append(dst, c)
	}
	return append(dst, f.special, term)
}

// splitPart decodes one part from the front of b.
func (f keyForm) splitPart(b []byte) (part []byte, term byte, rest []byte, ok bool) {
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c != f.special {
			part = append(part, c^f.mask)
			continue
		}
		if i+1 == len(b) {
			return nil, 0, nil, false
		}
		switch next := b[i+1]; next {
		case ^f.special:
			part = append(part, c^f.mask)
			i++
		case termEntry, termAfterKey:
			return part, next, b[i+2:], true
		default:
			return nil, 0, nil, false
		}
	}
	return nil, 0, nil, false
}

func appendDB(dst []byte, db string, tag byte) []byte {
	dst = bytewiseForm.appendPart(dst, []byte(db), termEntry)
	return append(dst, tag)
}

func encodeBound(db string, tag byte) []byte {
	return appendDB(make([]byte, 0, len(db)+3), db, tag)
}

func encodeEntry(f keyForm, db string, key, value []byte) []byte {
	dst := appendDB(make([]byte, 0, len(db)+len(key)+len(value)+8), db, tagEntry)
	dst = f.appendPart(dst, key, termEntry)
	return append(dst, value...)
}

func encodeAfterKey(f keyForm, db string, key []byte) []byte {
	dst := appendDB(make([]byte, 0, len(db)+len(key)+8), db, tagEntry)
	return f.appendPart(dst, key, termAfterKey)
}

type parsedKey struct {
	db    []byte
	tag   byte
	key   []byte
	value []byte
}

// parseKey decodes a stored key whose key part uses f. ok is false for
// bounds of other kinds and for keys this package did not write.
func parseKey(f keyForm, b []byte) (p parsedKey, ok bool) {
	db, term, rest, ok := bytewiseForm.splitPart(b)
	if !ok || term != termEntry || len(rest) == 0 {
		return p, false
	}
	p.db, p.tag, rest = db, rest[0], rest[1:]
	switch p.tag {
	case tagStart, tagEnd:
		return p, len(rest) == 0
	case tagEntry:
	default:
		return p, false
	}
	key, term, value, ok := f.splitPart(rest)
	if !ok || term != termEntry {
		return p, false
	}
	if key == nil {
		key = []byte{}
	}
	p.key, p.value = key, value
	return p, true
}

// metaKey is where the ordering name of database name is recorded.
func metaKey(name string) []byte {
	return encodeEntry(bytewiseForm, metaDB, []byte(name), nil)
}
