// Package auctionerr holds the error kinds returned by the auction engine.
//
// Every kind is a sentinel that callers match with errors.Is; the engine wraps them with context
// (fmt.Errorf("...: %w", ErrX)) so the message still says which entry, team or round was involved.
package auctionerr

import "errors"

var (
	// ErrQueueEmpty is returned when a round is requested but no unprocessed entry exists.
	ErrQueueEmpty = errors.New("queue empty")
	// ErrRoundAlreadyActive is returned when a partition already has a round in progress.
	ErrRoundAlreadyActive = errors.New("round already active")
	// ErrInvalidPosition is returned for a reorder target outside [1, count].
	ErrInvalidPosition = errors.New("invalid position")
	// ErrNotFound covers missing entries, rounds, players and teams.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientBudget is returned when a team cannot afford an amount.
	ErrInsufficientBudget = errors.New("insufficient budget")
	// ErrRosterFull is returned when a team has no open roster slots.
	ErrRosterFull = errors.New("roster full")
	// ErrInvalidStateTransition is returned when a command does not apply to the round's status.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrConcurrencyConflict means the caller lost a serialization race and may retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrBidTooLow is returned for a bid under the starting price or not above the highest bid.
	ErrBidTooLow = errors.New("bid too low")
	// ErrRoundStalled is returned while a round's timer is halted by a persistence failure.
	ErrRoundStalled = errors.New("round stalled")
)

// Kind returns the sentinel err wraps, or nil for errors outside the engine's vocabulary.
func Kind(err error) error {
	for _, kind := range []error{
		ErrQueueEmpty,
		ErrRoundAlreadyActive,
		ErrInvalidPosition,
		ErrNotFound,
		ErrInsufficientBudget,
		ErrRosterFull,
		ErrInvalidStateTransition,
		ErrConcurrencyConflict,
		ErrBidTooLow,
		ErrRoundStalled,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsValidation reports whether err is a precondition failure that left state untouched.
func IsValidation(err error) bool {
	switch Kind(err) {
	case nil, ErrConcurrencyConflict:
		return false
	}
	return true
}
