package models

import (
	"time"

	"github.com/google/uuid"
)

// PlayerStatus defines where a player stands in the auction.
type PlayerStatus string

const (
	PlayerStatusAvailable   PlayerStatus = "AVAILABLE"
	PlayerStatusAllocated   PlayerStatus = "ALLOCATED"
	PlayerStatusUnallocated PlayerStatus = "UNALLOCATED"
)

// Player represents a registered tournament player that can be auctioned
type Player struct {
	ID            uuid.UUID    `json:"id"`
	TournamentID  uuid.UUID    `json:"tournament_id"`
	FullName      string       `json:"full_name"`
	Position      string       `json:"position"`
	SkillLevel    string       `json:"skill_level"`
	BasePrice     int64        `json:"base_price"`
	Category      string       `json:"category"`
	Status        PlayerStatus `json:"status"`
	CurrentTeamID *uuid.UUID   `json:"current_team_id,omitempty"` // set only when ALLOCATED
	CreatedAt     time.Time    `json:"created_at"`
}

// IsAllocated reports whether the player currently belongs to a team.
func (p *Player) IsAllocated() bool {
	return p.Status == PlayerStatusAllocated
}
