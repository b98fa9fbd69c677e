package coordinator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/ledger"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// Snapshot returns the partition's queue, current round and timer, and team budgets, stamped
// with the last committed event sequence. It holds the partition lock so no command lands
// between reading the sequence and reading the state.
func (c *Coordinator) Snapshot(ctx context.Context, key models.PartitionKey) (*Snapshot, error) {
	unlock, err := c.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	snap := &Snapshot{
		TournamentID: key.TournamentID,
		Category:     key.Category,
		ServerTime:   c.clock.Now(),
	}
	err = c.store.Run(ctx, func(tx store.Tx) error {
		var err error
		if snap.Seq, err = tx.CurrentSeq(ctx, key); err != nil {
			return err
		}
		if snap.Queue, err = tx.ListQueue(ctx, key); err != nil {
			return err
		}
		if snap.Round, err = tx.ActiveRound(ctx, key); err != nil {
			return err
		}
		snap.Budgets, err = ledger.Snapshot(ctx, tx, key.TournamentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot: %w", err)
	}
	if snap.Queue == nil {
		snap.Queue = []models.QueueEntry{}
	}

	if l := c.getLive(key); l != nil && snap.Round != nil && l.roundID == snap.Round.ID {
		st := l.timer.State()
		snap.Timer = &st
	}
	return snap, nil
}

// CurrentRound returns the partition's round in progress with its timer, or nil.
func (c *Coordinator) CurrentRound(ctx context.Context, key models.PartitionKey) (*models.Round, *models.TimerState, error) {
	snap, err := c.Snapshot(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return snap.Round, snap.Timer, nil
}

// GetRound returns a round by id.
func (c *Coordinator) GetRound(ctx context.Context, roundID uuid.UUID) (*models.Round, error) {
	var r *models.Round
	err := c.store.Run(ctx, func(tx store.Tx) error {
		var err error
		r, err = tx.GetRound(ctx, roundID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return r, nil
}

// LatestRoundForPlayer returns the authoritative round of a player: the latest one that was not
// undone. It returns nil when there is none.
func (c *Coordinator) LatestRoundForPlayer(ctx context.Context, playerID uuid.UUID) (*models.Round, error) {
	var r *models.Round
	err := c.store.Run(ctx, func(tx store.Tx) error {
		var err error
		r, err = tx.CurrentRoundForPlayer(ctx, playerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get latest round: %w", err)
	}
	return r, nil
}

// Budgets returns budget and roster occupancy for every team in a tournament.
func (c *Coordinator) Budgets(ctx context.Context, tournamentID uuid.UUID) ([]ledger.TeamBudget, error) {
	var out []ledger.TeamBudget
	err := c.store.Run(ctx, func(tx store.Tx) error {
		var err error
		out, err = ledger.Snapshot(ctx, tx, tournamentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
