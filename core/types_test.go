package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareKeys(t *testing.T) {
	a, b := []byte("apple"), []byte("banana")
	assert.Negative(t, CompareKeys(nil, a, b))
	assert.Positive(t, CompareKeys(ReverseBytes, a, b))
	assert.Zero(t, CompareKeys(ReverseBytes, a, a))
}

func TestOrderingName(t *testing.T) {
	assert.Equal(t, "bytes", OrderingName(nil))
	assert.Equal(t, "bytes.reverse", OrderingName(ReverseBytes))

	byLen := NewKeyOrdering("len", func(a, b []byte) int { return len(a) - len(b) })
	assert.Equal(t, "len", OrderingName(byLen))
	assert.Negative(t, byLen.Compare([]byte("zz"), []byte("aaa")))
}

func TestAtomAndHandles(t *testing.T) {
	assert.Equal(t, "atom:12", AtomID(12).String())
	assert.Equal(t, "type:3", TypeHandle(3).String())
	assert.True(t, TypeHandle(0).IsZero())

	var nilAtom *Atom
	assert.False(t, nilAtom.IsLink())
	assert.True(t, (&Atom{Targets: []AtomID{1}}).IsLink())
}

func TestGotoResultString(t *testing.T) {
	assert.Equal(t, "found", GotoFound.String())
	assert.Equal(t, "close", GotoClose.String())
	assert.Equal(t, "nothing", GotoNothing.String())
	assert.Equal(t, "unknown", GotoResult(42).String())
}
