// Package preference derives where each of a team's preferred players currently stands.
// It holds no state: every call recomputes from the queue and player records.
package preference

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/models"
)

type State string

const (
	StateAvailable State = "available"
	StateInQueue   State = "in_queue"
	StateAllocated State = "allocated"
	StateUnsold    State = "unsold"
)

// Disposition is the current standing of one preferred player.
type Disposition struct {
	PlayerID   uuid.UUID  `json:"player_id"`
	PlayerName string     `json:"player_name"`
	Category   string     `json:"category"`
	Rank       int        `json:"rank"`
	State      State      `json:"state"`
	Position   int        `json:"position,omitempty"` // set for in_queue; 1 is on the block
	TeamID     *uuid.UUID `json:"team_id,omitempty"`  // set for allocated
}

// Classify computes dispositions ordered by preference rank. A player with an unprocessed queue
// entry is in_queue regardless of status. Preferences naming unknown players are skipped.
func Classify(prefs []models.Preference, players map[uuid.UUID]models.Player, queue []models.QueueEntry) []Disposition {
	positions := make(map[uuid.UUID]int, len(queue))
	for _, e := range queue {
		if !e.IsProcessed {
			positions[e.PlayerID] = e.Position
		}
	}

	ordered := append([]models.Preference(nil), prefs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	out := make([]Disposition, 0, len(ordered))
	for _, pref := range ordered {
		p, ok := players[pref.PlayerID]
		if !ok {
			continue
		}
		d := Disposition{
			PlayerID:   p.ID,
			PlayerName: p.FullName,
			Category:   p.Category,
			Rank:       pref.Rank,
		}
		switch pos, queued := positions[p.ID]; {
		case queued:
			d.State = StateInQueue
			d.Position = pos
		case p.Status == models.PlayerStatusAllocated:
			d.State = StateAllocated
			d.TeamID = p.CurrentTeamID
		case p.Status == models.PlayerStatusUnallocated:
			d.State = StateUnsold
		default:
			d.State = StateAvailable
		}
		out = append(out, d)
	}
	return out
}

// Monitor reads live state for Classify.
type Monitor struct {
	store store.Store
}

func NewMonitor(st store.Store) *Monitor {
	return &Monitor{store: st}
}

// Dispositions classifies the preferred players of a team against the queues of every
// category they belong to.
func (m *Monitor) Dispositions(ctx context.Context, teamID uuid.UUID) ([]Disposition, error) {
	var out []Disposition
	err := m.store.Run(ctx, func(tx store.Tx) error {
		team, err := tx.GetTeam(ctx, teamID)
		if err != nil {
			return err
		}
		prefs, err := tx.ListPreferences(ctx, teamID)
		if err != nil {
			return fmt.Errorf("failed to list preferences: %w", err)
		}
		if len(prefs) == 0 {
			out = []Disposition{}
			return nil
		}

		ids := make([]uuid.UUID, len(prefs))
		for i, p := range prefs {
			ids[i] = p.PlayerID
		}
		list, err := tx.ListPlayers(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to list players: %w", err)
		}

		players := make(map[uuid.UUID]models.Player, len(list))
		categories := make(map[string]bool)
		for _, p := range list {
			if p.TournamentID != team.TournamentID {
				continue
			}
			players[p.ID] = p
			categories[p.Category] = true
		}

		var queue []models.QueueEntry
		for category := range categories {
			entries, err := tx.ListQueue(ctx, models.PartitionKey{TournamentID: team.TournamentID, Category: category})
			if err != nil {
				return fmt.Errorf("failed to list queue: %w", err)
			}
			queue = append(queue, entries...)
		}

		out = Classify(prefs, players, queue)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
