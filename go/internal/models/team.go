package models

import (
	"time"

	"github.com/google/uuid"
)

// Team represents a tournament team bidding in the auction
type Team struct {
	ID              uuid.UUID `json:"id"`
	TournamentID    uuid.UUID `json:"tournament_id"`
	Name            string    `json:"name"`
	InitialBudget   int64     `json:"initial_budget"`
	RemainingBudget int64     `json:"remaining_budget"`
	MaxPlayers      int       `json:"max_players"`
	CurrentPlayers  int       `json:"current_players"` // derived from allocated players
	CreatedAt       time.Time `json:"created_at"`
}

// SpentBudget returns how many points the team has committed so far.
func (t *Team) SpentBudget() int64 {
	return t.InitialBudget - t.RemainingBudget
}

// OpenSlots returns how many more players the team can take.
func (t *Team) OpenSlots() int {
	if t.CurrentPlayers >= t.MaxPlayers {
		return 0
	}
	return t.MaxPlayers - t.CurrentPlayers
}

// Preference is one entry of a team's preferred-player list.
type Preference struct {
	TeamID   uuid.UUID `json:"team_id"`
	PlayerID uuid.UUID `json:"player_id"`
	Rank     int       `json:"rank"`
}
