package queue

import (
	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// Outcome is the result of enqueueing one player.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Reasons attached to skipped and failed items.
const (
	ReasonAlreadyQueued    = "already_queued"
	ReasonAlreadyAllocated = "already_allocated"
	ReasonNotFound         = "not_found"
	ReasonWrongTournament  = "wrong_tournament"
	ReasonWrongCategory    = "wrong_category"
	ReasonDuplicateInBatch = "duplicate_in_batch"
	ReasonStorageError     = "storage_error"
)

// ItemResult is the outcome for one requested player id.
type ItemResult struct {
	PlayerID uuid.UUID          `json:"player_id"`
	Outcome  Outcome            `json:"outcome"`
	Reason   string             `json:"reason,omitempty"`
	Error    string             `json:"error,omitempty"`
	Entry    *models.QueueEntry `json:"entry,omitempty"`
}

// EnqueueProgress is reported after every item of a batch.
type EnqueueProgress struct {
	Done     int        `json:"done"`
	Total    int        `json:"total"`
	Accepted int        `json:"accepted"`
	Skipped  int        `json:"skipped"`
	Failed   int        `json:"failed"`
	Last     ItemResult `json:"last"`
}

// EnqueueReport summarizes a batch enqueue.
type EnqueueReport struct {
	Items    []ItemResult `json:"items"`
	Accepted int          `json:"accepted"`
	Skipped  int          `json:"skipped"`
	Failed   int          `json:"failed"`
}

func (r *EnqueueReport) add(item ItemResult) {
	r.Items = append(r.Items, item)
	switch item.Outcome {
	case OutcomeAccepted:
		r.Accepted++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
}

func (r *EnqueueReport) progress(total int) EnqueueProgress {
	return EnqueueProgress{
		Done:     len(r.Items),
		Total:    total,
		Accepted: r.Accepted,
		Skipped:  r.Skipped,
		Failed:   r.Failed,
		Last:     r.Items[len(r.Items)-1],
	}
}
