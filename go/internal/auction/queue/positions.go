package queue

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// Renumber returns a copy of entries ordered by current position with positions rewritten to 1..N.
func Renumber(entries []models.QueueEntry) []models.QueueEntry {
	out := append([]models.QueueEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}

// MoveEntry moves one entry to newPosition. Entries between the old and new position shift by one.
func MoveEntry(entries []models.QueueEntry, entryID uuid.UUID, newPosition int) ([]models.QueueEntry, error) {
	ordered := Renumber(entries)
	if newPosition < 1 || newPosition > len(ordered) {
		return nil, fmt.Errorf("position %d outside [1, %d]: %w", newPosition, len(ordered), auctionerr.ErrInvalidPosition)
	}
	from := indexOf(ordered, entryID)
	if from < 0 {
		return nil, fmt.Errorf("queue entry %s: %w", entryID, auctionerr.ErrNotFound)
	}

	moved := ordered[from]
	rest := append(ordered[:from:from], ordered[from+1:]...)
	to := newPosition - 1
	out := make([]models.QueueEntry, 0, len(ordered))
	out = append(out, rest[:to]...)
	out = append(out, moved)
	out = append(out, rest[to:]...)
	for i := range out {
		out[i].Position = i + 1
	}
	return out, nil
}

// RemoveEntry drops one entry and closes the gap it leaves.
func RemoveEntry(entries []models.QueueEntry, entryID uuid.UUID) ([]models.QueueEntry, error) {
	ordered := Renumber(entries)
	idx := indexOf(ordered, entryID)
	if idx < 0 {
		return nil, fmt.Errorf("queue entry %s: %w", entryID, auctionerr.ErrNotFound)
	}
	out := append(ordered[:idx:idx], ordered[idx+1:]...)
	for i := range out {
		out[i].Position = i + 1
	}
	return out, nil
}

// Changed returns the entries of after whose position differs from before.
func Changed(before, after []models.QueueEntry) []models.QueueEntry {
	prev := make(map[uuid.UUID]int, len(before))
	for _, e := range before {
		prev[e.ID] = e.Position
	}
	var out []models.QueueEntry
	for _, e := range after {
		if p, ok := prev[e.ID]; !ok || p != e.Position {
			out = append(out, e)
		}
	}
	return out
}

// NextPosition is the tail position a new entry takes.
func NextPosition(entries []models.QueueEntry) int {
	last := 0
	for _, e := range entries {
		if e.Position > last {
			last = e.Position
		}
	}
	return last + 1
}

func indexOf(entries []models.QueueEntry, id uuid.UUID) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
