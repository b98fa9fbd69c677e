package auctionerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	wrapped := fmt.Errorf("team %s: %w", "abc", ErrInsufficientBudget)
	assert.Equal(t, ErrInsufficientBudget, Kind(wrapped))
	assert.Equal(t, ErrNotFound, Kind(fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrNotFound))))
	assert.Nil(t, Kind(errors.New("boom")))
}

func TestIsValidation(t *testing.T) {
	assert.True(t, IsValidation(fmt.Errorf("x: %w", ErrRosterFull)))
	assert.False(t, IsValidation(fmt.Errorf("x: %w", ErrConcurrencyConflict)))
	assert.False(t, IsValidation(errors.New("db down")))
}
