package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/events"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// The helpers below run inside a caller's transaction so round transitions can change the
// queue atomically with everything else they touch.

// Append adds a player at the tail of the partition queue.
func Append(ctx context.Context, tx store.Tx, key models.PartitionKey, playerID uuid.UUID, now time.Time) (*models.QueueEntry, error) {
	entries, err := tx.ListQueue(ctx, key)
	if err != nil {
		return nil, err
	}
	entry := models.QueueEntry{
		ID:           uuid.New(),
		TournamentID: key.TournamentID,
		Category:     key.Category,
		PlayerID:     playerID,
		Position:     NextPosition(entries),
		CreatedAt:    now,
	}
	if err := tx.InsertQueueEntry(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Process marks an entry processed and renumbers the entries left behind it.
func Process(ctx context.Context, tx store.Tx, entryID uuid.UUID) error {
	entry, err := liveEntry(ctx, tx, entryID)
	if err != nil {
		return err
	}
	before, err := tx.ListQueue(ctx, entry.Key())
	if err != nil {
		return err
	}
	after, err := RemoveEntry(before, entryID)
	if err != nil {
		return err
	}
	if err := tx.MarkQueueEntryProcessed(ctx, entryID); err != nil {
		return err
	}
	return tx.UpdateQueuePositions(ctx, Changed(before, after))
}

// Publish records a QueueChanged event carrying the partition's current queue.
func Publish(ctx context.Context, tx store.Tx, key models.PartitionKey, reason string) error {
	entries, err := tx.ListQueue(ctx, key)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	_, err = events.Append(ctx, tx, key, events.TypeQueueChanged, events.QueueChangedPayload{
		Reason:  reason,
		Entries: entries,
	})
	return err
}
