package models

import (
	"time"

	"github.com/google/uuid"
)

// RoundStatus defines the lifecycle state of an auction round.
type RoundStatus string

const (
	RoundStatusNotStarted RoundStatus = "NOT_STARTED"
	RoundStatusInProgress RoundStatus = "IN_PROGRESS"
	RoundStatusCompleted  RoundStatus = "COMPLETED"
	RoundStatusCancelled  RoundStatus = "CANCELLED"
	RoundStatusUndone     RoundStatus = "UNDONE"
)

// Bid is a single accepted bid within a round.
type Bid struct {
	TeamID   uuid.UUID `json:"team_id"`
	Amount   int64     `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

// Round is one auction attempt for one player.
type Round struct {
	ID            uuid.UUID   `json:"id"`
	TournamentID  uuid.UUID   `json:"tournament_id"`
	Category      string      `json:"category"`
	PlayerID      uuid.UUID   `json:"player_id"`
	QueueEntryID  uuid.UUID   `json:"queue_entry_id"`
	Status        RoundStatus `json:"status"`
	StartingPrice int64       `json:"starting_price"`
	WinningTeamID *uuid.UUID  `json:"winning_team_id,omitempty"`
	FinalPoints   *int64      `json:"final_points,omitempty"`
	StartTime     *time.Time  `json:"start_time,omitempty"`
	EndTime       *time.Time  `json:"end_time,omitempty"`
	Bids          []Bid       `json:"bids,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Key returns the partition the round belongs to.
func (r *Round) Key() PartitionKey {
	return PartitionKey{TournamentID: r.TournamentID, Category: r.Category}
}

// HighestBid returns the most recent accepted bid, which is always the highest.
func (r *Round) HighestBid() *Bid {
	if len(r.Bids) == 0 {
		return nil
	}
	b := r.Bids[len(r.Bids)-1]
	return &b
}

// IsTerminal reports whether the round can no longer take bids.
func (r *Round) IsTerminal() bool {
	switch r.Status {
	case RoundStatusCompleted, RoundStatusCancelled, RoundStatusUndone:
		return true
	}
	return false
}
