package coordinator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/auction/events"
	"github.com/mcdev12/tourney-auction/go/internal/auction/ledger"
	"github.com/mcdev12/tourney-auction/go/internal/auction/queue"
	"github.com/mcdev12/tourney-auction/go/internal/auction/round"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/rs/zerolog/log"
)

// AdvanceQueue starts a round for the head of the queue. It is the only path from Head to
// Start, and it refuses while the partition has a round in progress.
func (c *Coordinator) AdvanceQueue(ctx context.Context, key models.PartitionKey) (*models.Round, error) {
	unlock, err := c.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if l := c.getLive(key); l != nil {
		return nil, fmt.Errorf("round %s in %s: %w", l.roundID, key, auctionerr.ErrRoundAlreadyActive)
	}

	var (
		started models.Round
		timer   *round.Timer
	)
	err = c.exec(ctx, key, func(tx store.Tx) error {
		active, err := tx.ActiveRound(ctx, key)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("round %s in %s: %w", active.ID, key, auctionerr.ErrRoundAlreadyActive)
		}

		entries, err := tx.ListQueue(ctx, key)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("partition %s: %w", key, auctionerr.ErrQueueEmpty)
		}
		head := entries[0]

		player, err := tx.GetPlayer(ctx, head.PlayerID)
		if err != nil {
			return err
		}
		pending, err := tx.PendingRoundForEntry(ctx, head.ID)
		if err != nil {
			return err
		}

		started, err = round.Start(&head, pending, player.BasePrice, c.clock.Now())
		if err != nil {
			return err
		}
		if pending != nil {
			err = tx.UpdateRound(ctx, started)
		} else {
			err = tx.InsertRound(ctx, started)
		}
		if err != nil {
			return err
		}

		timer = round.NewTimer(c.cfg.Durations)
		_, err = events.Append(ctx, tx, key, events.TypeRoundStarted, events.RoundStartedPayload{
			Round:  started,
			Player: *player,
			Timer:  timer.State(),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to advance queue: %w", err)
	}

	c.setLive(key, &live{roundID: started.ID, timer: timer})
	c.metrics.RoundStarted()
	c.wake()

	log.Info().
		Str("partition", key.String()).
		Str("round_id", started.ID.String()).
		Str("player_id", started.PlayerID.String()).
		Int64("starting_price", started.StartingPrice).
		Msg("round started")
	return &started, nil
}

// RecordBid validates and records a bid. An accepted bid restarts the subsequent phase.
func (c *Coordinator) RecordBid(ctx context.Context, roundID, teamID uuid.UUID, amount int64) (*models.Bid, error) {
	key, err := c.roundKey(ctx, roundID)
	if err != nil {
		return nil, err
	}
	unlock, err := c.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	l := c.getLive(key)
	if l == nil || l.roundID != roundID {
		return nil, fmt.Errorf("round %s is not accepting bids: %w", roundID, auctionerr.ErrInvalidStateTransition)
	}
	if st := l.timer.State(); st.Stalled {
		return nil, fmt.Errorf("round %s: %s: %w", roundID, st.StallReason, auctionerr.ErrRoundStalled)
	}
	if l.timer.Complete() {
		return nil, fmt.Errorf("bidding on round %s has closed: %w", roundID, auctionerr.ErrInvalidStateTransition)
	}

	var (
		bid  models.Bid
		next = *l.timer
	)
	err = c.exec(ctx, key, func(tx store.Tx) error {
		r, err := tx.GetRound(ctx, roundID)
		if err != nil {
			return err
		}
		team, err := tx.GetTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if team.TournamentID != r.TournamentID {
			return fmt.Errorf("team %s is not in tournament %s: %w", teamID, r.TournamentID, auctionerr.ErrNotFound)
		}
		if err := round.ValidateBid(*r, *team, amount, c.cfg.MinBidIncrement); err != nil {
			return err
		}

		bid = round.ApplyBid(r, teamID, amount, c.clock.Now())
		if err := tx.UpdateRound(ctx, *r); err != nil {
			return err
		}
		next = *l.timer
		next.ResetForBid()
		_, err = events.Append(ctx, tx, key, events.TypeBidRecorded, events.BidRecordedPayload{
			RoundID: roundID,
			Bid:     bid,
			Timer:   next.State(),
		})
		return err
	})
	if err != nil {
		if auctionerr.IsValidation(err) {
			c.metrics.BidRejected(auctionerr.Kind(err).Error())
		}
		return nil, fmt.Errorf("failed to record bid: %w", err)
	}

	*l.timer = next
	c.metrics.BidAccepted()

	log.Info().
		Str("partition", key.String()).
		Str("round_id", roundID.String()).
		Str("team_id", teamID.String()).
		Int64("amount", amount).
		Msg("bid recorded")
	return &bid, nil
}

// Commit allocates the round's player to a team for finalPoints.
func (c *Coordinator) Commit(ctx context.Context, roundID, teamID uuid.UUID, finalPoints int64) (*models.Round, error) {
	key, err := c.roundKey(ctx, roundID)
	if err != nil {
		return nil, err
	}
	unlock, err := c.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	done, err := c.commitLocked(ctx, key, roundID, teamID, finalPoints)
	if err != nil {
		return nil, fmt.Errorf("failed to commit round: %w", err)
	}
	return done, nil
}

// commitLocked applies the four commit effects in one transaction: round COMPLETED, player
// ALLOCATED, budget debited, queue entry processed.
func (c *Coordinator) commitLocked(ctx context.Context, key models.PartitionKey, roundID, teamID uuid.UUID, finalPoints int64) (*models.Round, error) {
	var done models.Round
	err := c.exec(ctx, key, func(tx store.Tx) error {
		r, err := tx.GetRound(ctx, roundID)
		if err != nil {
			return err
		}
		if err := round.Complete(r, teamID, finalPoints, c.clock.Now()); err != nil {
			return err
		}

		team, err := tx.LockTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if team.TournamentID != r.TournamentID {
			return fmt.Errorf("team %s is not in tournament %s: %w", teamID, r.TournamentID, auctionerr.ErrNotFound)
		}
		if err := ledger.Check(*team, finalPoints); err != nil {
			return err
		}
		team, err = ledger.Debit(ctx, tx, teamID, finalPoints)
		if err != nil {
			return err
		}

		if err := tx.UpdatePlayerStatus(ctx, r.PlayerID, models.PlayerStatusAllocated, &teamID); err != nil {
			return err
		}
		if err := tx.UpdateRound(ctx, *r); err != nil {
			return err
		}
		if err := queue.Process(ctx, tx, r.QueueEntryID); err != nil {
			return err
		}

		if _, err := events.Append(ctx, tx, key, events.TypeRoundCompleted, events.RoundCompletedPayload{
			Round:           *r,
			TeamID:          teamID,
			FinalPoints:     finalPoints,
			RemainingBudget: team.RemainingBudget,
			CurrentPlayers:  team.CurrentPlayers + 1,
		}); err != nil {
			return err
		}
		done = *r
		return queue.Publish(ctx, tx, key, events.QueueReasonProcessed)
	})
	if err != nil {
		return nil, err
	}

	c.clearLive(key, roundID)
	c.metrics.RoundFinished(models.RoundStatusCompleted)

	log.Info().
		Str("partition", key.String()).
		Str("round_id", roundID.String()).
		Str("team_id", teamID.String()).
		Int64("final_points", finalPoints).
		Msg("round committed")
	return &done, nil
}

// Cancel closes the round with no winner: the player becomes UNALLOCATED and budgets are untouched.
func (c *Coordinator) Cancel(ctx context.Context, roundID uuid.UUID) (*models.Round, error) {
	key, err := c.roundKey(ctx, roundID)
	if err != nil {
		return nil, err
	}
	unlock, err := c.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	done, err := c.cancelLocked(ctx, key, roundID, events.CancelReasonConductor)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel round: %w", err)
	}
	return done, nil
}

func (c *Coordinator) cancelLocked(ctx context.Context, key models.PartitionKey, roundID uuid.UUID, reason string) (*models.Round, error) {
	var done models.Round
	err := c.exec(ctx, key, func(tx store.Tx) error {
		r, err := tx.GetRound(ctx, roundID)
		if err != nil {
			return err
		}
		if err := round.Cancel(r, c.clock.Now()); err != nil {
			return err
		}
		if err := tx.UpdatePlayerStatus(ctx, r.PlayerID, models.PlayerStatusUnallocated, nil); err != nil {
			return err
		}
		if err := tx.UpdateRound(ctx, *r); err != nil {
			return err
		}
		if err := queue.Process(ctx, tx, r.QueueEntryID); err != nil {
			return err
		}
		if _, err := events.Append(ctx, tx, key, events.TypeRoundCancelled, events.RoundCancelledPayload{
			Round:  *r,
			Reason: reason,
		}); err != nil {
			return err
		}
		done = *r
		return queue.Publish(ctx, tx, key, events.QueueReasonProcessed)
	})
	if err != nil {
		return nil, err
	}

	c.clearLive(key, roundID)
	c.metrics.RoundFinished(models.RoundStatusCancelled)

	log.Info().
		Str("partition", key.String()).
		Str("round_id", roundID.String()).
		Str("reason", reason).
		Msg("round cancelled")
	return &done, nil
}

// Undo reverses the latest completed round of a player: the budget is credited back, the
// player is AVAILABLE again and re-enters the queue at the tail with a fresh pending round.
func (c *Coordinator) Undo(ctx context.Context, roundID uuid.UUID) (*UndoResult, error) {
	key, err := c.roundKey(ctx, roundID)
	if err != nil {
		return nil, err
	}
	unlock, err := c.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var res UndoResult
	err = c.exec(ctx, key, func(tx store.Tx) error {
		r, err := tx.GetRound(ctx, roundID)
		if err != nil {
			return err
		}
		latest, err := tx.LatestRoundForPlayer(ctx, r.PlayerID)
		if err != nil {
			return err
		}
		if err := round.Undo(r, latest); err != nil {
			return err
		}

		teamID, refund := *r.WinningTeamID, *r.FinalPoints
		team, err := ledger.Credit(ctx, tx, teamID, refund)
		if err != nil {
			return err
		}
		if err := tx.UpdatePlayerStatus(ctx, r.PlayerID, models.PlayerStatusAvailable, nil); err != nil {
			return err
		}
		if err := tx.UpdateRound(ctx, *r); err != nil {
			return err
		}

		player, err := tx.GetPlayer(ctx, r.PlayerID)
		if err != nil {
			return err
		}
		now := c.clock.Now()
		entry, err := queue.Append(ctx, tx, key, r.PlayerID, now)
		if err != nil {
			return err
		}
		pending := round.NewPending(*entry, player.BasePrice, now)
		if err := tx.InsertRound(ctx, pending); err != nil {
			return err
		}

		team.CurrentPlayers--
		res = UndoResult{Round: *r, Team: ledger.Budget(*team), QueueEntry: *entry, PendingRound: pending}
		if _, err := events.Append(ctx, tx, key, events.TypeRoundUndone, events.RoundUndonePayload{
			UndoneRoundID:   r.ID,
			PlayerID:        r.PlayerID,
			TeamID:          teamID,
			RefundedPoints:  refund,
			RemainingBudget: team.RemainingBudget,
			CurrentPlayers:  team.CurrentPlayers,
			QueueEntry:      *entry,
			PendingRound:    pending,
		}); err != nil {
			return err
		}
		return queue.Publish(ctx, tx, key, events.QueueReasonRequeued)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to undo round: %w", err)
	}

	c.metrics.RoundFinished(models.RoundStatusUndone)
	log.Info().
		Str("partition", key.String()).
		Str("round_id", roundID.String()).
		Str("team_id", res.Team.TeamID.String()).
		Int64("refunded", *res.Round.FinalPoints).
		Msg("round undone")
	return &res, nil
}

// PauseTimer halts the countdown of the partition's round.
func (c *Coordinator) PauseTimer(ctx context.Context, key models.PartitionKey) (*models.TimerState, error) {
	unlock, err := c.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	l := c.getLive(key)
	if l == nil {
		return nil, fmt.Errorf("no round in progress in %s: %w", key, auctionerr.ErrInvalidStateTransition)
	}
	if l.timer.Paused() || l.timer.Complete() {
		return nil, fmt.Errorf("timer of round %s is not running: %w", l.roundID, auctionerr.ErrInvalidStateTransition)
	}

	next := *l.timer
	next.Pause()
	err = c.exec(ctx, key, func(tx store.Tx) error {
		_, err := events.Append(ctx, tx, key, events.TypeTimerPaused, events.TimerPausedPayload{
			RoundID:  l.roundID,
			PausedAt: c.clock.Now(),
			Timer:    next.State(),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pause timer: %w", err)
	}

	*l.timer = next
	st := next.State()
	log.Info().Str("partition", key.String()).Str("round_id", l.roundID.String()).Msg("timer paused")
	return &st, nil
}

// ResumeTimer restarts a paused timer. It also clears a stall, after which completion
// handling is retried on the next tick.
func (c *Coordinator) ResumeTimer(ctx context.Context, key models.PartitionKey) (*models.TimerState, error) {
	unlock, err := c.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	l := c.getLive(key)
	if l == nil {
		return nil, fmt.Errorf("no round in progress in %s: %w", key, auctionerr.ErrInvalidStateTransition)
	}
	if !l.timer.Paused() && !l.timer.State().Stalled {
		return nil, fmt.Errorf("timer of round %s is not paused: %w", l.roundID, auctionerr.ErrInvalidStateTransition)
	}

	next := *l.timer
	next.Resume()
	err = c.exec(ctx, key, func(tx store.Tx) error {
		_, err := events.Append(ctx, tx, key, events.TypeTimerResumed, events.TimerResumedPayload{
			RoundID:   l.roundID,
			ResumedAt: c.clock.Now(),
			Timer:     next.State(),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resume timer: %w", err)
	}

	*l.timer = next
	l.settled = false
	c.wake()
	st := next.State()
	log.Info().Str("partition", key.String()).Str("round_id", l.roundID.String()).Msg("timer resumed")
	return &st, nil
}

func (c *Coordinator) clearLive(key models.PartitionKey, roundID uuid.UUID) {
	c.liveMu.Lock()
	defer c.liveMu.Unlock()
	if l, ok := c.live[key]; ok && l.roundID == roundID {
		delete(c.live, key)
	}
}
