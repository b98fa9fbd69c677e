// Package events defines the auction change events, their payloads, and the envelope every
// subscriber receives.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// Envelope is the wire form of an event on NATS and on the websocket.
type Envelope struct {
	EventID      uuid.UUID       `json:"eventId"`
	EventType    string          `json:"eventType"`
	TournamentID uuid.UUID       `json:"tournamentId"`
	Category     string          `json:"category"`
	Seq          int64           `json:"seq"` // 0 for transient events
	Timestamp    time.Time       `json:"timestamp"`
	Payload      json.RawMessage `json:"payload"`
}

// Key returns the partition the envelope belongs to.
func (e Envelope) Key() models.PartitionKey {
	return models.PartitionKey{TournamentID: e.TournamentID, Category: e.Category}
}

// Transient reports whether the event bypassed the outbox.
func (e Envelope) Transient() bool {
	return e.Seq == 0
}

// FromOutbox wraps a committed outbox row.
func FromOutbox(ev models.OutboxEvent) Envelope {
	return Envelope{
		EventID:      ev.ID,
		EventType:    ev.EventType,
		TournamentID: ev.TournamentID,
		Category:     ev.Category,
		Seq:          ev.Seq,
		Timestamp:    ev.CreatedAt,
		Payload:      ev.Payload,
	}
}

// NewTransient builds an unsequenced envelope.
func NewTransient(key models.PartitionKey, eventType string, payload any, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:      uuid.New(),
		EventType:    eventType,
		TournamentID: key.TournamentID,
		Category:     key.Category,
		Timestamp:    now,
		Payload:      raw,
	}, nil
}

// Append marshals payload and writes it to the outbox in the caller's transaction.
func Append(ctx context.Context, tx store.OutboxRepository, key models.PartitionKey, eventType string, payload any) (*models.OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	ev, err := tx.AppendEvent(ctx, key, eventType, raw)
	if err != nil {
		return nil, err
	}
	return ev, nil
}
