package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is a committed auction event waiting to be relayed to subscribers.
type OutboxEvent struct {
	ID           uuid.UUID       `json:"id"`
	TournamentID uuid.UUID       `json:"tournament_id"`
	Category     string          `json:"category"`
	Seq          int64           `json:"seq"` // per-partition commit order
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
}

// Key returns the partition the event was committed in.
func (e *OutboxEvent) Key() PartitionKey {
	return PartitionKey{TournamentID: e.TournamentID, Category: e.Category}
}
