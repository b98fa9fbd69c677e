package coordinator

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLedgerAndQueueInvariantsHold drives a random mix of commits, cancels and undos and
// checks budget conservation, roster limits and queue density after every step.
func TestLedgerAndQueueInvariantsHold(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	faker := gofakeit.New(7)

	teams := []models.Team{h.AddTeam(1_000, 3), h.AddTeam(800, 2), h.AddTeam(1_500, 4)}
	var initial int64
	for _, tm := range teams {
		initial += tm.InitialBudget
	}
	h.queued(t, 12, 50)

	completed := map[uuid.UUID]int64{}
	for step := 0; step < 60; step++ {
		r, err := h.co.AdvanceQueue(ctx, h.Key)
		if err != nil {
			require.ErrorIs(t, err, auctionerr.ErrQueueEmpty)
			break
		}

		switch faker.Number(0, 3) {
		case 0:
			_, err = h.co.Cancel(ctx, r.ID)
			require.NoError(t, err)
		default:
			team := teams[faker.Number(0, len(teams)-1)]
			points := int64(faker.Number(50, 600))
			if _, err := h.co.Commit(ctx, r.ID, team.ID, points); err != nil {
				require.True(t, auctionerr.IsValidation(err), "unexpected error: %v", err)
				_, err = h.co.Cancel(ctx, r.ID)
				require.NoError(t, err)
			} else {
				completed[r.ID] = points
			}
		}

		if len(completed) > 0 && faker.Bool() {
			for id := range completed {
				_, err := h.co.Undo(ctx, id)
				require.NoError(t, err)
				delete(completed, id)
				break
			}
		}

		var spent, remaining int64
		for _, p := range completed {
			spent += p
		}
		for _, tm := range teams {
			cur := h.Team(t, tm.ID)
			assert.GreaterOrEqual(t, cur.RemainingBudget, int64(0))
			assert.LessOrEqual(t, cur.CurrentPlayers, cur.MaxPlayers)
			remaining += cur.RemainingBudget
		}
		require.Equal(t, initial, remaining+spent, "step %d", step)

		for i, e := range h.Queue(t) {
			require.Equal(t, i+1, e.Position, "step %d", step)
		}
	}
}
