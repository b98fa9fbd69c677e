package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// Event types. Everything except TimerTick is committed through the outbox and sequenced.
const (
	TypeQueueChanged   = "QueueChanged"
	TypeRoundStarted   = "RoundStarted"
	TypeBidRecorded    = "BidRecorded"
	TypeRoundCompleted = "RoundCompleted"
	TypeRoundCancelled = "RoundCancelled"
	TypeRoundUndone    = "RoundUndone"
	TypeRoundStalled   = "RoundStalled"
	TypeTimerPaused    = "TimerPaused"
	TypeTimerResumed   = "TimerResumed"

	// TypeTimerTick is broadcast once a second and never persisted.
	TypeTimerTick = "TimerTick"
	// TypeResync tells a subscriber its position fell out of the replay buffer.
	TypeResync = "Resync"
)

// Reasons carried by QueueChanged.
const (
	QueueReasonEnqueued  = "enqueued"
	QueueReasonRemoved   = "removed"
	QueueReasonReordered = "reordered"
	QueueReasonProcessed = "processed"
	QueueReasonRequeued  = "requeued"
)

// Reasons carried by RoundCancelled.
const (
	CancelReasonConductor = "conductor"
	CancelReasonTimeout   = "timeout"
)

// QueueChangedPayload is the payload for a QueueChanged event. It carries the whole active queue.
type QueueChangedPayload struct {
	Reason  string              `json:"reason"`
	Entries []models.QueueEntry `json:"entries"`
}

// RoundStartedPayload is the payload for a RoundStarted event
type RoundStartedPayload struct {
	Round  models.Round      `json:"round"`
	Player models.Player     `json:"player"`
	Timer  models.TimerState `json:"timer"`
}

// BidRecordedPayload is the payload for a BidRecorded event
type BidRecordedPayload struct {
	RoundID uuid.UUID         `json:"round_id"`
	Bid     models.Bid        `json:"bid"`
	Timer   models.TimerState `json:"timer"`
}

// RoundCompletedPayload is the payload for a RoundCompleted event
type RoundCompletedPayload struct {
	Round           models.Round `json:"round"`
	TeamID          uuid.UUID    `json:"team_id"`
	FinalPoints     int64        `json:"final_points"`
	RemainingBudget int64        `json:"remaining_budget"`
	CurrentPlayers  int          `json:"current_players"`
}

// RoundCancelledPayload is the payload for a RoundCancelled event
type RoundCancelledPayload struct {
	Round  models.Round `json:"round"`
	Reason string       `json:"reason"`
}

// RoundUndonePayload is the payload for a RoundUndone event
type RoundUndonePayload struct {
	UndoneRoundID   uuid.UUID         `json:"undone_round_id"`
	PlayerID        uuid.UUID         `json:"player_id"`
	TeamID          uuid.UUID         `json:"team_id"`
	RefundedPoints  int64             `json:"refunded_points"`
	RemainingBudget int64             `json:"remaining_budget"`
	CurrentPlayers  int               `json:"current_players"`
	QueueEntry      models.QueueEntry `json:"queue_entry"`
	PendingRound    models.Round      `json:"pending_round"`
}

// RoundStalledPayload is the payload for a RoundStalled event
type RoundStalledPayload struct {
	RoundID uuid.UUID         `json:"round_id"`
	Reason  string            `json:"reason"`
	Timer   models.TimerState `json:"timer"`
}

// TimerPausedPayload is the payload for a TimerPaused event
type TimerPausedPayload struct {
	RoundID  uuid.UUID         `json:"round_id"`
	PausedAt time.Time         `json:"paused_at"`
	Timer    models.TimerState `json:"timer"`
}

// TimerResumedPayload is the payload for a TimerResumed event
type TimerResumedPayload struct {
	RoundID   uuid.UUID         `json:"round_id"`
	ResumedAt time.Time         `json:"resumed_at"`
	Timer     models.TimerState `json:"timer"`
}

// TimerTickPayload is the payload for a transient TimerTick broadcast
type TimerTickPayload struct {
	RoundID    uuid.UUID         `json:"round_id"`
	Timer      models.TimerState `json:"timer"`
	ServerTime time.Time         `json:"server_time"`
}

// ResyncPayload tells a subscriber to fetch a snapshot.
type ResyncPayload struct {
	LastSeq   int64  `json:"last_seq"`
	OldestSeq int64  `json:"oldest_seq"`
	Reason    string `json:"reason"`
}
