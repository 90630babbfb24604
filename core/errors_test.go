package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUsageError(t *testing.T) {
	err := fmt.Errorf("walk: %w", NewUsageError("Next", ErrInvalidated))

	assert.True(t, IsUsageError(err))
	assert.False(t, IsStoreError(err))
	assert.ErrorIs(t, err, ErrInvalidated)
	assert.Equal(t, "walk: usage error in Next: cursor position was invalidated by a removal", err.Error())

	var ue *UsageError
	assert.True(t, errors.As(err, &ue))
	assert.Equal(t, "Next", ue.Op)
}

func TestStoreError(t *testing.T) {
	cause := errors.New("disk on fire")
	err := &StoreError{Op: "Advance", Index: "by-name", Err: cause}

	assert.True(t, IsStoreError(err))
	assert.False(t, IsUsageError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `on index "by-name"`)
	assert.Equal(t, "store failure in Open: disk on fire", (&StoreError{Op: "Open", Err: cause}).Error())
}

func TestEndOfSequence(t *testing.T) {
	err := EndOfSequence("Prev")
	assert.True(t, IsEndOfSequence(err))
	assert.False(t, IsUsageError(err))
	assert.False(t, IsEndOfSequence(ErrUnsupported))
}
