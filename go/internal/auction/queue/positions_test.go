package queue

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(n int) []models.QueueEntry {
	out := make([]models.QueueEntry, n)
	for i := range out {
		out[i] = models.QueueEntry{ID: uuid.New(), Position: i + 1}
	}
	return out
}

func order(es []models.QueueEntry) []uuid.UUID {
	ids := make([]uuid.UUID, len(es))
	for i, e := range es {
		ids[i] = e.ID
	}
	return ids
}

func assertDense(t *testing.T, es []models.QueueEntry) {
	t.Helper()
	for i, e := range es {
		assert.Equal(t, i+1, e.Position)
	}
}

func TestMoveEntry(t *testing.T) {
	// queue [A,B,C,D]
	q := entries(4)
	a, b, c, d := q[0].ID, q[1].ID, q[2].ID, q[3].ID

	tests := []struct {
		name string
		id   uuid.UUID
		pos  int
		want []uuid.UUID
	}{
		{"to head", c, 1, []uuid.UUID{c, a, b, d}},
		{"to tail", a, 4, []uuid.UUID{b, c, d, a}},
		{"one down", b, 3, []uuid.UUID{a, c, b, d}},
		{"same place", d, 4, []uuid.UUID{a, b, c, d}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MoveEntry(q, tt.id, tt.pos)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, order(got)); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
			assertDense(t, got)
		})
	}

	// input untouched
	assert.Equal(t, []uuid.UUID{a, b, c, d}, order(q))
}

func TestMoveEntryRejectsBadInput(t *testing.T) {
	q := entries(3)

	_, err := MoveEntry(q, q[0].ID, 0)
	assert.ErrorIs(t, err, auctionerr.ErrInvalidPosition)
	_, err = MoveEntry(q, q[0].ID, 4)
	assert.ErrorIs(t, err, auctionerr.ErrInvalidPosition)
	_, err = MoveEntry(q, uuid.New(), 1)
	assert.ErrorIs(t, err, auctionerr.ErrNotFound)
}

func TestRemoveEntry(t *testing.T) {
	q := entries(4)

	got, err := RemoveEntry(q, q[1].ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{q[0].ID, q[2].ID, q[3].ID}, order(got))
	assertDense(t, got)

	changed := Changed(q, got)
	assert.Len(t, changed, 2, "only entries behind the removed one move")

	_, err = RemoveEntry(q, uuid.New())
	assert.ErrorIs(t, err, auctionerr.ErrNotFound)
}

func TestRenumberClosesGaps(t *testing.T) {
	q := []models.QueueEntry{
		{ID: uuid.New(), Position: 7},
		{ID: uuid.New(), Position: 2},
		{ID: uuid.New(), Position: 4},
	}
	got := Renumber(q)
	assert.Equal(t, []uuid.UUID{q[1].ID, q[2].ID, q[0].ID}, order(got))
	assertDense(t, got)
	assert.Equal(t, 8, NextPosition(q))
	assert.Equal(t, 1, NextPosition(nil))
}
