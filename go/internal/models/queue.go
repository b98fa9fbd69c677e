package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PartitionKey identifies one independent auction: a sport category within a tournament.
type PartitionKey struct {
	TournamentID uuid.UUID `json:"tournament_id"`
	Category     string    `json:"category"`
}

// String returns the "<tournament>.<category>" form used for locks, subjects and logs.
func (k PartitionKey) String() string {
	return fmt.Sprintf("%s.%s", k.TournamentID, k.Category)
}

// IsZero reports whether the key was left unset.
func (k PartitionKey) IsZero() bool {
	return k.TournamentID == uuid.Nil && k.Category == ""
}

// QueueEntry is one player waiting to be auctioned.
type QueueEntry struct {
	ID           uuid.UUID `json:"id"`
	TournamentID uuid.UUID `json:"tournament_id"`
	Category     string    `json:"category"`
	PlayerID     uuid.UUID `json:"player_id"`
	Position     int       `json:"position"` // dense 1-based rank among unprocessed entries
	IsProcessed  bool      `json:"is_processed"`
	CreatedAt    time.Time `json:"created_at"`
}

// Key returns the partition the entry belongs to.
func (e *QueueEntry) Key() PartitionKey {
	return PartitionKey{TournamentID: e.TournamentID, Category: e.Category}
}
