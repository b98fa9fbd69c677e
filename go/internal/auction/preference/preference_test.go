package preference

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctiontest"
	"github.com/mcdev12/tourney-auction/go/internal/auction/coordinator"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	team := uuid.New()
	a, b, c, d, gone := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()

	players := map[uuid.UUID]models.Player{
		a: {ID: a, FullName: "A", Category: "football", Status: models.PlayerStatusAvailable},
		b: {ID: b, FullName: "B", Category: "football", Status: models.PlayerStatusAvailable},
		c: {ID: c, FullName: "C", Category: "football", Status: models.PlayerStatusAllocated, CurrentTeamID: &team},
		d: {ID: d, FullName: "D", Category: "chess", Status: models.PlayerStatusUnallocated},
	}
	queue := []models.QueueEntry{
		{PlayerID: b, Position: 2},
		{PlayerID: a, Position: 1, IsProcessed: true},
	}
	prefs := []models.Preference{
		{PlayerID: d, Rank: 4},
		{PlayerID: gone, Rank: 5},
		{PlayerID: c, Rank: 3},
		{PlayerID: a, Rank: 1},
		{PlayerID: b, Rank: 2},
	}

	got := Classify(prefs, players, queue)
	want := []Disposition{
		{PlayerID: a, PlayerName: "A", Category: "football", Rank: 1, State: StateAvailable},
		{PlayerID: b, PlayerName: "B", Category: "football", Rank: 2, State: StateInQueue, Position: 2},
		{PlayerID: c, PlayerName: "C", Category: "football", Rank: 3, State: StateAllocated, TeamID: &team},
		{PlayerID: d, PlayerName: "D", Category: "chess", Rank: 4, State: StateUnsold},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyEmpty(t *testing.T) {
	assert.Empty(t, Classify(nil, nil, nil))
}

func TestMonitorFollowsAuction(t *testing.T) {
	ctx := context.Background()
	f := auctiontest.New(t)
	co := coordinator.New(f.Store, coordinator.DefaultConfig(), coordinator.WithClock(f.Clock))
	mon := NewMonitor(f.Store)

	buyer := f.AddTeam(1000, 5)
	ps := f.AddPlayers(3, 100)
	chess := models.PartitionKey{TournamentID: f.Key.TournamentID, Category: "chess"}
	other := f.AddPlayerIn(chess, 50)

	f.Store.SetPreferences(buyer.ID, []models.Preference{
		{TeamID: buyer.ID, PlayerID: ps[0].ID, Rank: 1},
		{TeamID: buyer.ID, PlayerID: ps[1].ID, Rank: 2},
		{TeamID: buyer.ID, PlayerID: ps[2].ID, Rank: 3},
		{TeamID: buyer.ID, PlayerID: other.ID, Rank: 4},
	})

	_, err := co.Enqueue(ctx, f.Key, auctiontest.IDs(ps[:2]), nil)
	require.NoError(t, err)
	_, err = co.Enqueue(ctx, chess, []uuid.UUID{other.ID}, nil)
	require.NoError(t, err)

	states := func() []State {
		ds, err := mon.Dispositions(ctx, buyer.ID)
		require.NoError(t, err)
		out := make([]State, len(ds))
		for i, d := range ds {
			out[i] = d.State
		}
		return out
	}
	assert.Equal(t, []State{StateInQueue, StateInQueue, StateAvailable, StateInQueue}, states())

	r, err := co.AdvanceQueue(ctx, f.Key)
	require.NoError(t, err)
	_, err = co.Commit(ctx, r.ID, buyer.ID, 200)
	require.NoError(t, err)

	r, err = co.AdvanceQueue(ctx, f.Key)
	require.NoError(t, err)
	_, err = co.Cancel(ctx, r.ID)
	require.NoError(t, err)

	ds, err := mon.Dispositions(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, ds, 4)
	assert.Equal(t, StateAllocated, ds[0].State)
	require.NotNil(t, ds[0].TeamID)
	assert.Equal(t, buyer.ID, *ds[0].TeamID)
	assert.Equal(t, StateUnsold, ds[1].State)
	assert.Equal(t, StateAvailable, ds[2].State)
	assert.Equal(t, StateInQueue, ds[3].State)
	assert.Equal(t, 1, ds[3].Position)
}

func TestMonitorUnknownTeam(t *testing.T) {
	f := auctiontest.New(t)
	_, err := NewMonitor(f.Store).Dispositions(context.Background(), uuid.New())
	assert.ErrorIs(t, err, auctionerr.ErrNotFound)
}

func TestMonitorNoPreferences(t *testing.T) {
	f := auctiontest.New(t)
	team := f.AddTeam(500, 3)
	ds, err := NewMonitor(f.Store).Dispositions(context.Background(), team.ID)
	require.NoError(t, err)
	assert.Empty(t, ds)
}
