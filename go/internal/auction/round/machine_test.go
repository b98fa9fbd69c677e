package round

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func head() *models.QueueEntry {
	return &models.QueueEntry{ID: uuid.New(), TournamentID: uuid.New(), Category: "football", PlayerID: uuid.New(), Position: 1}
}

func TestStart(t *testing.T) {
	_, err := Start(nil, nil, 100, now)
	assert.ErrorIs(t, err, auctionerr.ErrQueueEmpty)

	h := head()
	r, err := Start(h, nil, 100, now)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusInProgress, r.Status)
	assert.Equal(t, h.PlayerID, r.PlayerID)
	assert.Equal(t, h.ID, r.QueueEntryID)
	assert.Equal(t, &now, r.StartTime)

	pending := NewPending(*h, 50, now.Add(-time.Hour))
	promoted, err := Start(h, &pending, 100, now)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, promoted.ID)
	assert.EqualValues(t, 100, promoted.StartingPrice)

	pending.Status = models.RoundStatusCancelled
	_, err = Start(h, &pending, 100, now)
	assert.ErrorIs(t, err, auctionerr.ErrInvalidStateTransition)
}

func TestValidateBid(t *testing.T) {
	r, err := Start(head(), nil, 500_000, now)
	require.NoError(t, err)
	rich := models.Team{ID: uuid.New(), RemainingBudget: 2_000_000, MaxPlayers: 5}
	poor := models.Team{ID: uuid.New(), RemainingBudget: 1_000_000, MaxPlayers: 5}
	full := models.Team{ID: uuid.New(), RemainingBudget: 2_000_000, MaxPlayers: 1, CurrentPlayers: 1}

	assert.ErrorIs(t, ValidateBid(r, poor, 1_500_000, 0), auctionerr.ErrInsufficientBudget)
	assert.ErrorIs(t, ValidateBid(r, full, 600_000, 0), auctionerr.ErrRosterFull)
	assert.ErrorIs(t, ValidateBid(r, rich, 400_000, 0), auctionerr.ErrBidTooLow)
	require.NoError(t, ValidateBid(r, rich, 500_000, 0))

	ApplyBid(&r, rich.ID, 500_000, now)
	assert.ErrorIs(t, ValidateBid(r, poor, 500_000, 0), auctionerr.ErrBidTooLow)
	assert.ErrorIs(t, ValidateBid(r, poor, 550_000, 100_000), auctionerr.ErrBidTooLow)
	assert.NoError(t, ValidateBid(r, poor, 600_000, 100_000))
	assert.Len(t, r.Bids, 1, "validation never mutates")

	_ = Cancel(&r, now)
	assert.ErrorIs(t, ValidateBid(r, rich, 900_000, 0), auctionerr.ErrInvalidStateTransition)
}

func TestCompleteAndUndo(t *testing.T) {
	r, err := Start(head(), nil, 100, now)
	require.NoError(t, err)
	team := uuid.New()

	assert.ErrorIs(t, Complete(&r, team, 50, now), auctionerr.ErrBidTooLow)
	require.NoError(t, Complete(&r, team, 800, now))
	assert.Equal(t, models.RoundStatusCompleted, r.Status)
	assert.EqualValues(t, 800, *r.FinalPoints)
	assert.ErrorIs(t, Cancel(&r, now), auctionerr.ErrInvalidStateTransition)

	newer := models.Round{ID: uuid.New()}
	assert.ErrorIs(t, Undo(&r, &newer), auctionerr.ErrInvalidStateTransition)

	latest := r
	require.NoError(t, Undo(&r, &latest))
	assert.Equal(t, models.RoundStatusUndone, r.Status)
	assert.ErrorIs(t, Undo(&r, &r), auctionerr.ErrInvalidStateTransition, "a second undo is refused")
}
