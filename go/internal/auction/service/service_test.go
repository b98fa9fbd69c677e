package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctiontest"
	"github.com/mcdev12/tourney-auction/go/internal/auction/coordinator"
	"github.com/mcdev12/tourney-auction/go/internal/auction/preference"
	"github.com/mcdev12/tourney-auction/go/internal/auction/queue"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceHarness struct {
	*auctiontest.Fixture
	co     *coordinator.Coordinator
	client *Client
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()
	f := auctiontest.New(t)
	co := coordinator.New(f.Store, coordinator.DefaultConfig(), coordinator.WithClock(f.Clock))

	mux := http.NewServeMux()
	mux.Handle(NewService(co, preference.NewMonitor(f.Store)).Handler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &serviceHarness{
		Fixture: f,
		co:      co,
		client:  NewClient(srv.Client(), srv.URL),
	}
}

func (h *serviceHarness) partition() Partition {
	return Partition{TournamentID: h.Key.TournamentID.String(), Category: h.Key.Category}
}

func ids(players []models.Player) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = p.ID.String()
	}
	return out
}

func requireCode(t *testing.T, err error, code connect.Code, kind string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, connect.CodeOf(err), err.Error())
	assert.Equal(t, kind, ErrorKind(err))
}

func TestAuctionLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)
	buyer := h.AddTeam(1000, 5)
	ps := h.AddPlayers(2, 100)

	enq, err := h.client.Enqueue(ctx, &EnqueueRequest{Partition: h.partition(), PlayerIDs: ids(ps)})
	require.NoError(t, err)
	assert.Equal(t, 2, enq.Report.Accepted)

	q, err := h.client.GetQueue(ctx, &GetQueueRequest{Partition: h.partition()})
	require.NoError(t, err)
	require.Len(t, q.Entries, 2)
	assert.Equal(t, ps[0].ID, q.Entries[0].PlayerID)

	started, err := h.client.AdvanceQueue(ctx, &AdvanceQueueRequest{Partition: h.partition()})
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusInProgress, started.Round.Status)
	assert.Equal(t, ps[0].ID, started.Round.PlayerID)

	bid, err := h.client.RecordBid(ctx, &RecordBidRequest{
		RoundID: started.Round.ID.String(),
		TeamID:  buyer.ID.String(),
		Amount:  150,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), bid.Bid.Amount)

	current, err := h.client.GetRound(ctx, &GetRoundRequest{
		TournamentID: h.Key.TournamentID.String(),
		Category:     h.Key.Category,
	})
	require.NoError(t, err)
	require.NotNil(t, current.Round)
	require.NotNil(t, current.Timer)
	assert.Equal(t, started.Round.ID, current.Round.ID)

	done, err := h.client.Commit(ctx, &CommitRequest{
		RoundID:     started.Round.ID.String(),
		TeamID:      buyer.ID.String(),
		FinalPoints: 150,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusCompleted, done.Round.Status)

	budgets, err := h.client.GetBudgets(ctx, &GetBudgetsRequest{TournamentID: h.Key.TournamentID.String()})
	require.NoError(t, err)
	require.Len(t, budgets.Budgets, 1)
	assert.Equal(t, int64(850), budgets.Budgets[0].RemainingBudget)

	byPlayer, err := h.client.GetRound(ctx, &GetRoundRequest{PlayerID: ps[0].ID.String()})
	require.NoError(t, err)
	require.NotNil(t, byPlayer.Round)
	assert.Equal(t, started.Round.ID, byPlayer.Round.ID)

	undone, err := h.client.Undo(ctx, &UndoRequest{RoundID: started.Round.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusUndone, undone.Result.Round.Status)
	assert.Equal(t, int64(1000), undone.Result.Team.RemainingBudget)

	snap, err := h.client.GetSnapshot(ctx, &GetSnapshotRequest{Partition: h.partition()})
	require.NoError(t, err)
	assert.Len(t, snap.Snapshot.Queue, 2)
	assert.Positive(t, snap.Snapshot.Seq)
}

func TestBidOverBudgetIsFailedPrecondition(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)
	poor := h.AddTeam(1_000_000, 5)
	p := h.AddPlayer(100)

	_, err := h.client.Enqueue(ctx, &EnqueueRequest{Partition: h.partition(), PlayerIDs: []string{p.ID.String()}})
	require.NoError(t, err)
	started, err := h.client.AdvanceQueue(ctx, &AdvanceQueueRequest{Partition: h.partition()})
	require.NoError(t, err)

	_, err = h.client.RecordBid(ctx, &RecordBidRequest{
		RoundID: started.Round.ID.String(),
		TeamID:  poor.ID.String(),
		Amount:  1_500_000,
	})
	requireCode(t, err, connect.CodeFailedPrecondition, "InsufficientBudget")
	assert.Equal(t, int64(1_000_000), h.Team(t, poor.ID).RemainingBudget)
}

func TestErrorCodes(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)

	_, err := h.client.AdvanceQueue(ctx, &AdvanceQueueRequest{Partition: h.partition()})
	requireCode(t, err, connect.CodeFailedPrecondition, "QueueEmpty")

	_, err = h.client.Cancel(ctx, &CancelRequest{RoundID: uuid.NewString()})
	requireCode(t, err, connect.CodeNotFound, "NotFound")

	_, err = h.client.Remove(ctx, &RemoveRequest{EntryID: "not-a-uuid"})
	requireCode(t, err, connect.CodeInvalidArgument, "")

	_, err = h.client.Enqueue(ctx, &EnqueueRequest{Partition: h.partition()})
	requireCode(t, err, connect.CodeInvalidArgument, "")

	_, err = h.client.GetRound(ctx, &GetRoundRequest{})
	requireCode(t, err, connect.CodeInvalidArgument, "")

	_, err = h.client.GetRound(ctx, &GetRoundRequest{PlayerID: uuid.NewString()})
	requireCode(t, err, connect.CodeNotFound, "")
}

func TestReorderOutOfRange(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)
	ps := h.AddPlayers(2, 100)

	enq, err := h.client.Enqueue(ctx, &EnqueueRequest{Partition: h.partition(), PlayerIDs: ids(ps)})
	require.NoError(t, err)
	entry := enq.Report.Items[1].Entry
	require.NotNil(t, entry)

	_, err = h.client.Reorder(ctx, &ReorderRequest{EntryID: entry.ID.String(), NewPosition: 5})
	requireCode(t, err, connect.CodeInvalidArgument, "InvalidPosition")

	q, err := h.client.Reorder(ctx, &ReorderRequest{EntryID: entry.ID.String(), NewPosition: 1})
	require.NoError(t, err)
	require.Len(t, q.Entries, 2)
	assert.Equal(t, ps[1].ID, q.Entries[0].PlayerID)
}

func TestEnqueueStreamReportsEveryItem(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)
	ps := h.AddPlayers(3, 100)
	req := &EnqueueRequest{
		Partition: h.partition(),
		PlayerIDs: append(ids(ps), ps[0].ID.String()),
	}

	var got []queue.EnqueueProgress
	err := h.client.EnqueueStream(ctx, req, func(p queue.EnqueueProgress) {
		got = append(got, p)
	})
	require.NoError(t, err)
	require.Len(t, got, 4)

	last := got[3]
	assert.Equal(t, 4, last.Done)
	assert.Equal(t, 4, last.Total)
	assert.Equal(t, 3, last.Accepted)
	assert.Equal(t, 1, last.Failed)
	assert.Equal(t, queue.ReasonDuplicateInBatch, last.Last.Reason)
}

func TestTimerPauseResume(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)
	p := h.AddPlayer(100)

	_, err := h.client.PauseTimer(ctx, &TimerRequest{Partition: h.partition()})
	require.Error(t, err)

	_, err = h.client.Enqueue(ctx, &EnqueueRequest{Partition: h.partition(), PlayerIDs: []string{p.ID.String()}})
	require.NoError(t, err)
	_, err = h.client.AdvanceQueue(ctx, &AdvanceQueueRequest{Partition: h.partition()})
	require.NoError(t, err)

	paused, err := h.client.PauseTimer(ctx, &TimerRequest{Partition: h.partition()})
	require.NoError(t, err)
	assert.False(t, paused.Timer.IsRunning)

	resumed, err := h.client.ResumeTimer(ctx, &TimerRequest{Partition: h.partition()})
	require.NoError(t, err)
	assert.True(t, resumed.Timer.IsRunning)
}

func TestGetPreferences(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)
	team := h.AddTeam(1000, 5)
	ps := h.AddPlayers(2, 100)
	h.Store.SetPreferences(team.ID, []models.Preference{
		{TeamID: team.ID, PlayerID: ps[1].ID, Rank: 1},
		{TeamID: team.ID, PlayerID: ps[0].ID, Rank: 2},
	})
	_, err := h.client.Enqueue(ctx, &EnqueueRequest{Partition: h.partition(), PlayerIDs: []string{ps[0].ID.String()}})
	require.NoError(t, err)

	resp, err := h.client.GetPreferences(ctx, &GetPreferencesRequest{TeamID: team.ID.String()})
	require.NoError(t, err)
	require.Len(t, resp.Dispositions, 2)
	assert.Equal(t, preference.StateAvailable, resp.Dispositions[0].State)
	assert.Equal(t, preference.StateInQueue, resp.Dispositions[1].State)
}

func TestToConnectError(t *testing.T) {
	tests := []struct {
		err  error
		code connect.Code
	}{
		{fmt.Errorf("x: %w", auctionerr.ErrNotFound), connect.CodeNotFound},
		{fmt.Errorf("x: %w", auctionerr.ErrBidTooLow), connect.CodeInvalidArgument},
		{fmt.Errorf("x: %w", auctionerr.ErrRosterFull), connect.CodeFailedPrecondition},
		{fmt.Errorf("x: %w", auctionerr.ErrRoundStalled), connect.CodeFailedPrecondition},
		{fmt.Errorf("x: %w", auctionerr.ErrConcurrencyConflict), connect.CodeAborted},
		{fmt.Errorf("x: %w", context.DeadlineExceeded), connect.CodeDeadlineExceeded},
		{errors.New("disk on fire"), connect.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.code, connect.CodeOf(toConnectError(tt.err)))
		})
	}

	passthrough := connect.NewError(connect.CodeUnavailable, errors.New("down"))
	assert.Same(t, passthrough, toConnectError(passthrough))
}

// cancelAfterFirst cancels the caller's context once the first player of a batch is done.
type cancelAfterFirst struct {
	Auction
	cancel context.CancelFunc
}

func (c cancelAfterFirst) Enqueue(ctx context.Context, key models.PartitionKey, playerIDs []uuid.UUID, progress func(queue.EnqueueProgress)) (*queue.EnqueueReport, error) {
	return c.Auction.Enqueue(ctx, key, playerIDs, func(queue.EnqueueProgress) { c.cancel() })
}

func TestInterruptedEnqueueReportsProgress(t *testing.T) {
	h := newServiceHarness(t)
	ps := h.AddPlayers(3, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewService(cancelAfterFirst{Auction: h.co, cancel: cancel}, preference.NewMonitor(h.Store))

	_, err := svc.Enqueue(ctx, connect.NewRequest(&EnqueueRequest{Partition: h.partition(), PlayerIDs: ids(ps)}))
	require.Error(t, err)
	var ce *connect.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, connect.CodeCanceled, ce.Code())
	assert.Equal(t, "1", ce.Meta().Get(EnqueueDoneHeader))
	assert.Equal(t, "1", ce.Meta().Get(EnqueueAcceptedHeader))

	q := h.Queue(t)
	require.Len(t, q, 1, "the accepted player stays queued")
	assert.Equal(t, ps[0].ID, q[0].PlayerID)
}
