// Package store declares the persistence contract the auction engine runs on.
//
// All mutations happen inside a Tx obtained from Store.RunInTx, which serializes transactions
// for the same partition. Everything written in one Tx, outbox events included, commits or
// rolls back together.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// Store opens transactions.
type Store interface {
	// RunInTx runs fn in a transaction serialized against every other RunInTx on key.
	// If fn returns an error the transaction rolls back.
	RunInTx(ctx context.Context, key models.PartitionKey, fn func(tx Tx) error) error
	// Run runs fn in a transaction without partition serialization (reads, outbox bookkeeping).
	Run(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	QueueRepository
	PlayerRepository
	TeamRepository
	RoundRepository
	OutboxRepository
	PreferenceRepository
}

// QueueRepository persists queue entries.
type QueueRepository interface {
	// ListQueue returns unprocessed entries of the partition ordered by position.
	ListQueue(ctx context.Context, key models.PartitionKey) ([]models.QueueEntry, error)
	GetQueueEntry(ctx context.Context, id uuid.UUID) (*models.QueueEntry, error)
	// FindQueuedEntry returns the unprocessed entry for a player, or nil when there is none.
	FindQueuedEntry(ctx context.Context, key models.PartitionKey, playerID uuid.UUID) (*models.QueueEntry, error)
	InsertQueueEntry(ctx context.Context, entry models.QueueEntry) error
	// DeleteQueueEntry removes an entry along with any round bound to it.
	DeleteQueueEntry(ctx context.Context, id uuid.UUID) error
	// UpdateQueuePositions rewrites the position of every given entry as one step.
	UpdateQueuePositions(ctx context.Context, entries []models.QueueEntry) error
	MarkQueueEntryProcessed(ctx context.Context, id uuid.UUID) error
}

// PlayerRepository reads players and records auction outcomes on them.
type PlayerRepository interface {
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	ListPlayers(ctx context.Context, ids []uuid.UUID) ([]models.Player, error)
	UpdatePlayerStatus(ctx context.Context, id uuid.UUID, status models.PlayerStatus, teamID *uuid.UUID) error
}

// TeamRepository reads teams and adjusts budgets. CurrentPlayers is always derived.
type TeamRepository interface {
	GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error)
	// LockTeam reads a team and holds it against concurrent budget updates until the Tx ends.
	LockTeam(ctx context.Context, id uuid.UUID) (*models.Team, error)
	ListTeams(ctx context.Context, tournamentID uuid.UUID) ([]models.Team, error)
	UpdateTeamBudget(ctx context.Context, id uuid.UUID, remaining int64) error
}

// RoundRepository persists rounds.
type RoundRepository interface {
	InsertRound(ctx context.Context, round models.Round) error
	UpdateRound(ctx context.Context, round models.Round) error
	GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error)
	// ActiveRound returns the IN_PROGRESS round of the partition, or nil.
	ActiveRound(ctx context.Context, key models.PartitionKey) (*models.Round, error)
	// LatestRoundForPlayer returns the most recently created round for a player, or nil.
	LatestRoundForPlayer(ctx context.Context, playerID uuid.UUID) (*models.Round, error)
	// CurrentRoundForPlayer returns the most recently created round for a player that is not
	// UNDONE, or nil.
	CurrentRoundForPlayer(ctx context.Context, playerID uuid.UUID) (*models.Round, error)
	// PendingRoundForEntry returns the NOT_STARTED round bound to a queue entry, or nil.
	PendingRoundForEntry(ctx context.Context, entryID uuid.UUID) (*models.Round, error)
	ListInProgressRounds(ctx context.Context) ([]models.Round, error)
}

// OutboxRepository stores committed events until they are relayed.
type OutboxRepository interface {
	// AppendEvent allocates the next sequence number of the partition and stores the event.
	AppendEvent(ctx context.Context, key models.PartitionKey, eventType string, payload []byte) (*models.OutboxEvent, error)
	// CurrentSeq returns the last sequence number allocated for the partition.
	CurrentSeq(ctx context.Context, key models.PartitionKey) (int64, error)
	// FetchUnsent returns unsent events in commit order.
	FetchUnsent(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkSent(ctx context.Context, ids []uuid.UUID) error
}

// PreferenceRepository reads team preferred-player lists.
type PreferenceRepository interface {
	ListPreferences(ctx context.Context, teamID uuid.UUID) ([]models.Preference, error)
}
