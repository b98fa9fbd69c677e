package service

import (
	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/coordinator"
	"github.com/mcdev12/tourney-auction/go/internal/auction/ledger"
	"github.com/mcdev12/tourney-auction/go/internal/auction/preference"
	"github.com/mcdev12/tourney-auction/go/internal/auction/queue"
	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// Partition names one auction. Embedded in requests that act on a whole queue.
type Partition struct {
	TournamentID string `json:"tournament_id" validate:"required,uuid"`
	Category     string `json:"category" validate:"required,max=64"`
}

func (p Partition) key() models.PartitionKey {
	return models.PartitionKey{TournamentID: uuid.MustParse(p.TournamentID), Category: p.Category}
}

type EnqueueRequest struct {
	Partition
	PlayerIDs []string `json:"player_ids" validate:"required,min=1,dive,uuid"`
}

type EnqueueResponse struct {
	Report queue.EnqueueReport `json:"report"`
}

type RemoveRequest struct {
	EntryID string `json:"entry_id" validate:"required,uuid"`
}

type ReorderRequest struct {
	EntryID     string `json:"entry_id" validate:"required,uuid"`
	NewPosition int    `json:"new_position" validate:"min=1"`
}

type QueueResponse struct {
	Entries []models.QueueEntry `json:"entries"`
}

type AdvanceQueueRequest struct {
	Partition
}

type RoundResponse struct {
	Round models.Round `json:"round"`
}

type RecordBidRequest struct {
	RoundID string `json:"round_id" validate:"required,uuid"`
	TeamID  string `json:"team_id" validate:"required,uuid"`
	Amount  int64  `json:"amount" validate:"gt=0"`
}

type RecordBidResponse struct {
	Bid models.Bid `json:"bid"`
}

type CommitRequest struct {
	RoundID     string `json:"round_id" validate:"required,uuid"`
	TeamID      string `json:"team_id" validate:"required,uuid"`
	FinalPoints int64  `json:"final_points" validate:"gt=0"`
}

type CancelRequest struct {
	RoundID string `json:"round_id" validate:"required,uuid"`
}

type UndoRequest struct {
	RoundID string `json:"round_id" validate:"required,uuid"`
}

type UndoResponse struct {
	Result coordinator.UndoResult `json:"result"`
}

type TimerRequest struct {
	Partition
}

type TimerResponse struct {
	Timer models.TimerState `json:"timer"`
}

type GetQueueRequest struct {
	Partition
}

// GetRoundRequest selects a round by id, the latest round of a player, or the current round of
// a partition, in that order of precedence.
type GetRoundRequest struct {
	RoundID      string `json:"round_id,omitempty" validate:"omitempty,uuid"`
	PlayerID     string `json:"player_id,omitempty" validate:"omitempty,uuid"`
	TournamentID string `json:"tournament_id,omitempty" validate:"omitempty,uuid"`
	Category     string `json:"category,omitempty"`
}

type GetRoundResponse struct {
	Round *models.Round      `json:"round,omitempty"`
	Timer *models.TimerState `json:"timer,omitempty"`
}

type GetBudgetsRequest struct {
	TournamentID string `json:"tournament_id" validate:"required,uuid"`
}

type GetBudgetsResponse struct {
	Budgets []ledger.TeamBudget `json:"budgets"`
}

type GetPreferencesRequest struct {
	TeamID string `json:"team_id" validate:"required,uuid"`
}

type GetPreferencesResponse struct {
	Dispositions []preference.Disposition `json:"dispositions"`
}

type GetSnapshotRequest struct {
	Partition
}

type GetSnapshotResponse struct {
	Snapshot coordinator.Snapshot `json:"snapshot"`
}
