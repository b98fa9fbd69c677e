// Package round implements the auction round state machine and its countdown timer.
//
// Every function here is pure: it validates a transition and applies it to the given round
// value. Persisting the result is the caller's job.
package round

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/auction/ledger"
	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// NewPending creates a NOT_STARTED round bound to a queue entry.
func NewPending(entry models.QueueEntry, startingPrice int64, now time.Time) models.Round {
	return models.Round{
		ID:            uuid.New(),
		TournamentID:  entry.TournamentID,
		Category:      entry.Category,
		PlayerID:      entry.PlayerID,
		QueueEntryID:  entry.ID,
		Status:        models.RoundStatusNotStarted,
		StartingPrice: startingPrice,
		CreatedAt:     now,
	}
}

// Start puts the head of the queue up for auction. A NOT_STARTED round already bound to the
// head is promoted; otherwise a new round is created.
func Start(head *models.QueueEntry, existing *models.Round, startingPrice int64, now time.Time) (models.Round, error) {
	if head == nil {
		return models.Round{}, auctionerr.ErrQueueEmpty
	}
	r := NewPending(*head, startingPrice, now)
	if existing != nil {
		if existing.Status != models.RoundStatusNotStarted || existing.QueueEntryID != head.ID {
			return models.Round{}, fmt.Errorf("round %s is %s: %w", existing.ID, existing.Status, auctionerr.ErrInvalidStateTransition)
		}
		r = *existing
		r.StartingPrice = startingPrice
	}
	r.Status = models.RoundStatusInProgress
	r.StartTime = &now
	return r, nil
}

// ValidateBid checks a bid without changing anything. The first bid must meet the starting
// price; later bids must beat the highest bid by at least minIncrement.
func ValidateBid(r models.Round, team models.Team, amount, minIncrement int64) error {
	if r.Status != models.RoundStatusInProgress {
		return fmt.Errorf("round %s is %s: %w", r.ID, r.Status, auctionerr.ErrInvalidStateTransition)
	}
	if err := ledger.Check(team, amount); err != nil {
		return err
	}
	if minIncrement < 1 {
		minIncrement = 1
	}
	if high := r.HighestBid(); high != nil {
		if amount < high.Amount+minIncrement {
			return fmt.Errorf("bid %d must be at least %d: %w", amount, high.Amount+minIncrement, auctionerr.ErrBidTooLow)
		}
	} else if amount < r.StartingPrice {
		return fmt.Errorf("bid %d below starting price %d: %w", amount, r.StartingPrice, auctionerr.ErrBidTooLow)
	}
	return nil
}

// ApplyBid appends an accepted bid to the round's bid log.
func ApplyBid(r *models.Round, teamID uuid.UUID, amount int64, now time.Time) models.Bid {
	bid := models.Bid{TeamID: teamID, Amount: amount, PlacedAt: now}
	r.Bids = append(r.Bids, bid)
	return bid
}

// Complete closes the round with a winner.
func Complete(r *models.Round, teamID uuid.UUID, finalPoints int64, now time.Time) error {
	if r.Status != models.RoundStatusInProgress {
		return fmt.Errorf("round %s is %s: %w", r.ID, r.Status, auctionerr.ErrInvalidStateTransition)
	}
	if finalPoints < r.StartingPrice {
		return fmt.Errorf("final points %d below starting price %d: %w", finalPoints, r.StartingPrice, auctionerr.ErrBidTooLow)
	}
	r.Status = models.RoundStatusCompleted
	r.WinningTeamID = &teamID
	r.FinalPoints = &finalPoints
	r.EndTime = &now
	return nil
}

// Cancel closes the round with no winner.
func Cancel(r *models.Round, now time.Time) error {
	if r.Status != models.RoundStatusInProgress {
		return fmt.Errorf("round %s is %s: %w", r.ID, r.Status, auctionerr.ErrInvalidStateTransition)
	}
	r.Status = models.RoundStatusCancelled
	r.EndTime = &now
	return nil
}

// Undo reverses a completed round. Only the latest round of a player can be undone.
func Undo(r *models.Round, latest *models.Round) error {
	if r.Status != models.RoundStatusCompleted {
		return fmt.Errorf("round %s is %s: %w", r.ID, r.Status, auctionerr.ErrInvalidStateTransition)
	}
	if latest == nil || latest.ID != r.ID {
		return fmt.Errorf("round %s is not the latest for player %s: %w", r.ID, r.PlayerID, auctionerr.ErrInvalidStateTransition)
	}
	if r.WinningTeamID == nil || r.FinalPoints == nil {
		return fmt.Errorf("round %s has no recorded outcome: %w", r.ID, auctionerr.ErrInvalidStateTransition)
	}
	r.Status = models.RoundStatusUndone
	return nil
}
