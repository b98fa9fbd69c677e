package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/events"
	"github.com/mcdev12/tourney-auction/go/internal/auction/ledger"
	"github.com/mcdev12/tourney-auction/go/internal/auction/round"
	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// Config tunes the coordinator.
type Config struct {
	Durations            round.Durations `yaml:"timer"`
	AutoCommitOnComplete bool            `yaml:"auto_commit_on_complete"` // commit the highest bid when the timer runs out
	MinBidIncrement      int64           `yaml:"min_bid_increment"`       // minimum raise over the highest bid
	MaxConflictRetries   int             `yaml:"max_conflict_retries"`    // retries after a ConcurrencyConflict
	ConflictBackoff      time.Duration   `yaml:"conflict_backoff"`        // multiplied by the attempt number
	TickInterval         time.Duration   `yaml:"tick_interval"`           // must equal round.TickLength
	NumWorkers           int             `yaml:"workers"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Durations:          round.DefaultDurations(),
		MinBidIncrement:    1,
		MaxConflictRetries: 3,
		ConflictBackoff:    50 * time.Millisecond,
		TickInterval:       round.TickLength,
		NumWorkers:         4,
	}
}

// TickSink receives events that bypass the outbox: timer ticks, and stall notices that could
// not be persisted.
type TickSink interface {
	PublishTransient(ctx context.Context, env events.Envelope) error
}

// Notifier is told whenever a transaction that wrote outbox events commits.
type Notifier interface {
	Notify()
}

// Snapshot is the full state of one partition at a sequence number. Events with a higher
// sequence apply on top of it.
type Snapshot struct {
	TournamentID uuid.UUID           `json:"tournament_id"`
	Category     string              `json:"category"`
	Seq          int64               `json:"seq"`
	Queue        []models.QueueEntry `json:"queue"`
	Round        *models.Round       `json:"round,omitempty"`
	Timer        *models.TimerState  `json:"timer,omitempty"`
	Budgets      []ledger.TeamBudget `json:"budgets"`
	ServerTime   time.Time           `json:"server_time"`
}

// UndoResult describes what an undo put back.
type UndoResult struct {
	Round        models.Round      `json:"round"`
	Team         ledger.TeamBudget `json:"team"`
	QueueEntry   models.QueueEntry `json:"queue_entry"`
	PendingRound models.Round      `json:"pending_round"`
}

// live is the transient state of a round in progress.
type live struct {
	roundID uuid.UUID
	timer   *round.Timer
	settled bool // completion handled; waiting on the conductor
}
