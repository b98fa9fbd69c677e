// Package queue keeps the ordered list of players waiting to be auctioned in each partition.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/auction/events"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/rs/zerolog/log"
)

// App handles queue business logic
type App struct {
	store store.Store
	clock clockwork.Clock
}

// NewApp creates a new queue App. Mutations run through st.RunInTx, so passing a store that
// adds locking or retries applies them to every queue change.
func NewApp(st store.Store, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{store: st, clock: clock}
}

// Enqueue appends players to the partition queue one at a time. Each id is validated and
// committed independently; a failed id never undoes one accepted before it.
func (a *App) Enqueue(ctx context.Context, key models.PartitionKey, playerIDs []uuid.UUID, progress func(EnqueueProgress)) (*EnqueueReport, error) {
	if key.IsZero() {
		return nil, errors.New("tournament id and category are required")
	}

	report := &EnqueueReport{Items: make([]ItemResult, 0, len(playerIDs))}
	seen := make(map[uuid.UUID]struct{}, len(playerIDs))

	for _, playerID := range playerIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var item ItemResult
		if _, dup := seen[playerID]; dup {
			item = ItemResult{PlayerID: playerID, Outcome: OutcomeFailed, Reason: ReasonDuplicateInBatch}
		} else {
			seen[playerID] = struct{}{}
			item = a.enqueueOne(ctx, key, playerID)
		}

		report.add(item)
		if progress != nil {
			progress(report.progress(len(playerIDs)))
		}
	}

	log.Info().
		Str("partition", key.String()).
		Int("accepted", report.Accepted).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("enqueue batch finished")
	return report, nil
}

func (a *App) enqueueOne(ctx context.Context, key models.PartitionKey, playerID uuid.UUID) ItemResult {
	item := ItemResult{PlayerID: playerID}

	err := a.store.RunInTx(ctx, key, func(tx store.Tx) error {
		player, err := tx.GetPlayer(ctx, playerID)
		if err != nil {
			return err
		}
		switch {
		case player.TournamentID != key.TournamentID:
			item.Outcome, item.Reason = OutcomeFailed, ReasonWrongTournament
			return nil
		case player.Category != key.Category:
			item.Outcome, item.Reason = OutcomeFailed, ReasonWrongCategory
			return nil
		case player.IsAllocated():
			item.Outcome, item.Reason = OutcomeSkipped, ReasonAlreadyAllocated
			return nil
		}

		existing, err := tx.FindQueuedEntry(ctx, key, playerID)
		if err != nil {
			return err
		}
		if existing != nil {
			item.Outcome, item.Reason = OutcomeSkipped, ReasonAlreadyQueued
			return nil
		}

		entry, err := Append(ctx, tx, key, playerID, a.clock.Now())
		if err != nil {
			return err
		}
		if err := Publish(ctx, tx, key, events.QueueReasonEnqueued); err != nil {
			return err
		}
		item.Outcome = OutcomeAccepted
		item.Entry = entry
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, auctionerr.ErrNotFound):
		item = ItemResult{PlayerID: playerID, Outcome: OutcomeFailed, Reason: ReasonNotFound}
	default:
		log.Error().Err(err).Str("player_id", playerID.String()).Msg("failed to enqueue player")
		item = ItemResult{PlayerID: playerID, Outcome: OutcomeFailed, Reason: ReasonStorageError, Error: err.Error()}
	}
	return item
}

// Remove deletes an unprocessed entry and closes the gap behind it.
func (a *App) Remove(ctx context.Context, entryID uuid.UUID) ([]models.QueueEntry, error) {
	key, err := a.entryKey(ctx, entryID)
	if err != nil {
		return nil, err
	}

	var queue []models.QueueEntry
	err = a.store.RunInTx(ctx, key, func(tx store.Tx) error {
		entry, err := liveEntry(ctx, tx, entryID)
		if err != nil {
			return err
		}
		active, err := tx.ActiveRound(ctx, key)
		if err != nil {
			return err
		}
		if active != nil && active.QueueEntryID == entry.ID {
			return fmt.Errorf("entry %s is being auctioned: %w", entryID, auctionerr.ErrInvalidStateTransition)
		}

		before, err := tx.ListQueue(ctx, key)
		if err != nil {
			return err
		}
		after, err := RemoveEntry(before, entryID)
		if err != nil {
			return err
		}
		if err := tx.DeleteQueueEntry(ctx, entryID); err != nil {
			return err
		}
		if err := tx.UpdateQueuePositions(ctx, Changed(before, after)); err != nil {
			return err
		}
		queue = after
		return Publish(ctx, tx, key, events.QueueReasonRemoved)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remove queue entry: %w", err)
	}

	log.Info().Str("partition", key.String()).Str("entry_id", entryID.String()).Msg("removed queue entry")
	return queue, nil
}

// Reorder moves an entry to newPosition. While a round is in progress its entry holds
// position 1, so neither it nor anything else can move there.
func (a *App) Reorder(ctx context.Context, entryID uuid.UUID, newPosition int) ([]models.QueueEntry, error) {
	key, err := a.entryKey(ctx, entryID)
	if err != nil {
		return nil, err
	}

	var queue []models.QueueEntry
	err = a.store.RunInTx(ctx, key, func(tx store.Tx) error {
		if _, err := liveEntry(ctx, tx, entryID); err != nil {
			return err
		}
		// the entry being auctioned stays at the head
		active, err := tx.ActiveRound(ctx, key)
		if err != nil {
			return err
		}
		if active != nil && active.QueueEntryID == entryID {
			return fmt.Errorf("entry %s is being auctioned: %w", entryID, auctionerr.ErrInvalidStateTransition)
		}
		if active != nil && newPosition == 1 {
			return fmt.Errorf("position 1 is held by round %s: %w", active.ID, auctionerr.ErrInvalidStateTransition)
		}

		before, err := tx.ListQueue(ctx, key)
		if err != nil {
			return err
		}
		after, err := MoveEntry(before, entryID, newPosition)
		if err != nil {
			return err
		}
		changed := Changed(before, after)
		if len(changed) == 0 {
			queue = after
			return nil
		}
		if err := tx.UpdateQueuePositions(ctx, changed); err != nil {
			return err
		}
		queue = after
		return Publish(ctx, tx, key, events.QueueReasonReordered)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reorder queue entry: %w", err)
	}

	log.Info().
		Str("partition", key.String()).
		Str("entry_id", entryID.String()).
		Int("position", newPosition).
		Msg("reordered queue entry")
	return queue, nil
}

// Head returns the entry at position 1, or nil when the queue is empty.
func (a *App) Head(ctx context.Context, key models.PartitionKey) (*models.QueueEntry, error) {
	entries, err := a.List(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// List returns the active queue in position order.
func (a *App) List(ctx context.Context, key models.PartitionKey) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := a.store.Run(ctx, func(tx store.Tx) error {
		var err error
		entries, err = tx.ListQueue(ctx, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	return entries, nil
}

func (a *App) entryKey(ctx context.Context, entryID uuid.UUID) (models.PartitionKey, error) {
	var key models.PartitionKey
	err := a.store.Run(ctx, func(tx store.Tx) error {
		entry, err := liveEntry(ctx, tx, entryID)
		if err != nil {
			return err
		}
		key = entry.Key()
		return nil
	})
	return key, err
}

func liveEntry(ctx context.Context, tx store.Tx, entryID uuid.UUID) (*models.QueueEntry, error) {
	entry, err := tx.GetQueueEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.IsProcessed {
		return nil, fmt.Errorf("queue entry %s already processed: %w", entryID, auctionerr.ErrNotFound)
	}
	return entry, nil
}
