package queue

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctiontest"
	"github.com/mcdev12/tourney-auction/go/internal/auction/events"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueReportsEveryItem(t *testing.T) {
	ctx := context.Background()
	f := auctiontest.New(t)
	app := NewApp(f.Store, f.Clock)

	good := f.AddPlayers(2, 100)
	otherCategory := f.AddPlayerIn(models.PartitionKey{TournamentID: f.Key.TournamentID, Category: "cricket"}, 100)
	otherTournament := f.AddPlayerIn(models.PartitionKey{TournamentID: uuid.New(), Category: f.Key.Category}, 100)
	missing := uuid.New()

	var progress []EnqueueProgress
	ids := []uuid.UUID{good[0].ID, missing, good[1].ID, good[0].ID, otherCategory.ID, otherTournament.ID}
	report, err := app.Enqueue(ctx, f.Key, ids, func(p EnqueueProgress) { progress = append(progress, p) })
	require.NoError(t, err)

	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 4, report.Failed)
	reasons := make([]string, len(report.Items))
	for i, it := range report.Items {
		reasons[i] = it.Reason
	}
	assert.Equal(t, []string{"", ReasonNotFound, "", ReasonDuplicateInBatch, ReasonWrongCategory, ReasonWrongTournament}, reasons)

	require.Len(t, progress, len(ids))
	last := progress[len(progress)-1]
	assert.Equal(t, len(ids), last.Done)
	assert.Equal(t, len(ids), last.Total)
	assert.Equal(t, 2, progress[2].Accepted)

	queue := f.Queue(t)
	require.Len(t, queue, 2)
	assert.Equal(t, good[0].ID, queue[0].PlayerID)
	assert.Equal(t, 2, queue[1].Position)

	assert.Equal(t, []string{events.TypeQueueChanged, events.TypeQueueChanged}, f.EventTypes(t))
}

func TestEnqueueSkipsQueuedAndAllocatedPlayers(t *testing.T) {
	ctx := context.Background()
	f := auctiontest.New(t)
	app := NewApp(f.Store, f.Clock)
	team := f.AddTeam(1000, 5)
	ps := f.AddPlayers(3, 100)

	require.NoError(t, f.Store.Run(ctx, func(tx store.Tx) error {
		return tx.UpdatePlayerStatus(ctx, ps[2].ID, models.PlayerStatusAllocated, &team.ID)
	}))

	_, err := app.Enqueue(ctx, f.Key, []uuid.UUID{ps[0].ID}, nil)
	require.NoError(t, err)

	report, err := app.Enqueue(ctx, f.Key, auctiontest.IDs(ps), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, ReasonAlreadyQueued, report.Items[0].Reason)
	assert.Equal(t, ReasonAlreadyAllocated, report.Items[2].Reason)
}

func TestEnqueueAcceptsUnallocatedPlayer(t *testing.T) {
	ctx := context.Background()
	f := auctiontest.New(t)
	app := NewApp(f.Store, f.Clock)
	p := f.AddPlayer(100)

	require.NoError(t, f.Store.Run(ctx, func(tx store.Tx) error {
		return tx.UpdatePlayerStatus(ctx, p.ID, models.PlayerStatusUnallocated, nil)
	}))
	report, err := app.Enqueue(ctx, f.Key, []uuid.UUID{p.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)
}

func TestRemoveAndReorderKeepPositionsDense(t *testing.T) {
	ctx := context.Background()
	f := auctiontest.New(t)
	app := NewApp(f.Store, f.Clock)
	ps := f.AddPlayers(4, 100)

	_, err := app.Enqueue(ctx, f.Key, auctiontest.IDs(ps), nil)
	require.NoError(t, err)
	q := f.Queue(t)

	// [A,B,C,D] Reorder(C,1) -> [C,A,B,D]
	got, err := app.Reorder(ctx, q[2].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ps[2].ID, ps[0].ID, ps[1].ID, ps[3].ID}, playerOrder(got))
	assert.Equal(t, playerOrder(got), playerOrder(f.Queue(t)))

	_, err = app.Remove(ctx, q[0].ID)
	require.NoError(t, err)
	stored := f.Queue(t)
	assert.Equal(t, []uuid.UUID{ps[2].ID, ps[1].ID, ps[3].ID}, playerOrder(stored))
	for i, e := range stored {
		assert.Equal(t, i+1, e.Position)
	}

	head, err := app.Head(ctx, f.Key)
	require.NoError(t, err)
	assert.Equal(t, ps[2].ID, head.PlayerID)
}

func TestRemoveAndReorderErrors(t *testing.T) {
	ctx := context.Background()
	f := auctiontest.New(t)
	app := NewApp(f.Store, f.Clock)
	ps := f.AddPlayers(2, 100)
	_, err := app.Enqueue(ctx, f.Key, auctiontest.IDs(ps), nil)
	require.NoError(t, err)
	q := f.Queue(t)
	f.Events(t)

	_, err = app.Reorder(ctx, q[0].ID, 3)
	assert.ErrorIs(t, err, auctionerr.ErrInvalidPosition)
	_, err = app.Remove(ctx, uuid.New())
	assert.ErrorIs(t, err, auctionerr.ErrNotFound)

	require.NoError(t, f.Store.Run(ctx, func(tx store.Tx) error {
		return Process(ctx, tx, q[0].ID)
	}))
	_, err = app.Remove(ctx, q[0].ID)
	assert.ErrorIs(t, err, auctionerr.ErrNotFound, "processed entries cannot be removed")

	assert.Empty(t, f.EventTypes(t), "failed operations publish nothing")
	assert.Equal(t, 1, f.Queue(t)[0].Position)
}

func TestHeadOfEmptyQueue(t *testing.T) {
	f := auctiontest.New(t)
	app := NewApp(f.Store, f.Clock)

	head, err := app.Head(context.Background(), f.Key)
	require.NoError(t, err)
	assert.Nil(t, head)
}

func playerOrder(es []models.QueueEntry) []uuid.UUID {
	ids := make([]uuid.UUID, len(es))
	for i, e := range es {
		ids[i] = e.PlayerID
	}
	return ids
}
