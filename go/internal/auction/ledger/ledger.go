// Package ledger enforces team budget and roster limits.
//
// The check functions are pure. Debit and Credit run inside the caller's transaction and are
// called exactly once per commit or undo.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// TeamBudget is the budget and roster view of one team.
type TeamBudget struct {
	TeamID          uuid.UUID `json:"team_id"`
	Name            string    `json:"name"`
	InitialBudget   int64     `json:"initial_budget"`
	RemainingBudget int64     `json:"remaining_budget"`
	SpentBudget     int64     `json:"spent_budget"`
	MaxPlayers      int       `json:"max_players"`
	CurrentPlayers  int       `json:"current_players"`
	OpenSlots       int       `json:"open_slots"`
}

// Afford reports whether the team can pay amount.
func Afford(team models.Team, amount int64) bool {
	return amount >= 0 && amount <= team.RemainingBudget
}

// RosterHasCapacity reports whether the team can take one more player.
func RosterHasCapacity(team models.Team) bool {
	return team.CurrentPlayers < team.MaxPlayers
}

// Check is the combined precondition for bidding on or buying a player.
func Check(team models.Team, amount int64) error {
	if !Afford(team, amount) {
		return fmt.Errorf("team %s has %d, needs %d: %w", team.ID, team.RemainingBudget, amount, auctionerr.ErrInsufficientBudget)
	}
	if !RosterHasCapacity(team) {
		return fmt.Errorf("team %s has %d/%d players: %w", team.ID, team.CurrentPlayers, team.MaxPlayers, auctionerr.ErrRosterFull)
	}
	return nil
}

// Debit takes amount from the team's remaining budget.
func Debit(ctx context.Context, tx store.TeamRepository, teamID uuid.UUID, amount int64) (*models.Team, error) {
	team, err := tx.LockTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !Afford(*team, amount) {
		return nil, fmt.Errorf("debit %d from team %s with %d left: %w", amount, teamID, team.RemainingBudget, auctionerr.ErrInsufficientBudget)
	}
	team.RemainingBudget -= amount
	if err := tx.UpdateTeamBudget(ctx, teamID, team.RemainingBudget); err != nil {
		return nil, err
	}
	return team, nil
}

// Credit returns amount to the team. A credit that would exceed the initial budget means the
// amount was never debited and is refused.
func Credit(ctx context.Context, tx store.TeamRepository, teamID uuid.UUID, amount int64) (*models.Team, error) {
	team, err := tx.LockTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if amount < 0 || team.RemainingBudget+amount > team.InitialBudget {
		return nil, fmt.Errorf("credit %d to team %s would exceed initial budget %d: %w",
			amount, teamID, team.InitialBudget, auctionerr.ErrInvalidStateTransition)
	}
	team.RemainingBudget += amount
	if err := tx.UpdateTeamBudget(ctx, teamID, team.RemainingBudget); err != nil {
		return nil, err
	}
	return team, nil
}

// Budget converts a team into its ledger view.
func Budget(team models.Team) TeamBudget {
	return TeamBudget{
		TeamID:          team.ID,
		Name:            team.Name,
		InitialBudget:   team.InitialBudget,
		RemainingBudget: team.RemainingBudget,
		SpentBudget:     team.SpentBudget(),
		MaxPlayers:      team.MaxPlayers,
		CurrentPlayers:  team.CurrentPlayers,
		OpenSlots:       team.OpenSlots(),
	}
}

// Snapshot returns the budget view of every team in a tournament.
func Snapshot(ctx context.Context, tx store.TeamRepository, tournamentID uuid.UUID) ([]TeamBudget, error) {
	teams, err := tx.ListTeams(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	out := make([]TeamBudget, len(teams))
	for i, t := range teams {
		out[i] = Budget(t)
	}
	return out, nil
}
