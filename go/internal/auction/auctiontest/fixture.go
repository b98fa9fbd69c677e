// Package auctiontest builds seeded in-memory auctions for package tests.
package auctiontest

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store/memstore"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/stretchr/testify/require"
)

// Fixture is one tournament with a single category loaded into a memstore.
type Fixture struct {
	Store   *memstore.Store
	Clock   *clockwork.FakeClock
	Key     models.PartitionKey
	Teams   []models.Team
	Players []models.Player

	faker *gofakeit.Faker
}

// New creates a tournament with no teams or players. The faker is seeded so names are stable.
func New(t testing.TB) *Fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC))
	return &Fixture{
		Store: memstore.New(clock),
		Clock: clock,
		Key:   models.PartitionKey{TournamentID: uuid.New(), Category: "football"},
		faker: gofakeit.New(42),
	}
}

// AddTeam registers a team with the given budget and roster size.
func (f *Fixture) AddTeam(budget int64, maxPlayers int) models.Team {
	team := models.Team{
		ID:              uuid.New(),
		TournamentID:    f.Key.TournamentID,
		Name:            f.faker.Company(),
		InitialBudget:   budget,
		RemainingBudget: budget,
		MaxPlayers:      maxPlayers,
		CreatedAt:       f.Clock.Now(),
	}
	f.Store.AddTeams(team)
	f.Teams = append(f.Teams, team)
	return team
}

// AddPlayer registers an AVAILABLE player in the fixture category.
func (f *Fixture) AddPlayer(basePrice int64) models.Player {
	return f.AddPlayerIn(f.Key, basePrice)
}

// AddPlayerIn registers an AVAILABLE player in an arbitrary partition.
func (f *Fixture) AddPlayerIn(key models.PartitionKey, basePrice int64) models.Player {
	player := models.Player{
		ID:           uuid.New(),
		TournamentID: key.TournamentID,
		FullName:     f.faker.Name(),
		Position:     f.faker.RandomString([]string{"striker", "midfielder", "defender", "goalkeeper"}),
		SkillLevel:   f.faker.RandomString([]string{"beginner", "intermediate", "advanced"}),
		BasePrice:    basePrice,
		Category:     key.Category,
		Status:       models.PlayerStatusAvailable,
		CreatedAt:    f.Clock.Now(),
	}
	f.Store.AddPlayers(player)
	f.Players = append(f.Players, player)
	return player
}

// AddPlayers registers n players with the same base price.
func (f *Fixture) AddPlayers(n int, basePrice int64) []models.Player {
	out := make([]models.Player, n)
	for i := range out {
		out[i] = f.AddPlayer(basePrice)
	}
	return out
}

// IDs returns the ids of players in order.
func IDs(players []models.Player) []uuid.UUID {
	ids := make([]uuid.UUID, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	return ids
}

// Team reads the current state of a team.
func (f *Fixture) Team(t testing.TB, id uuid.UUID) models.Team {
	t.Helper()
	var team *models.Team
	f.view(t, func(tx store.Tx) (err error) {
		team, err = tx.GetTeam(context.Background(), id)
		return err
	})
	return *team
}

// Player reads the current state of a player.
func (f *Fixture) Player(t testing.TB, id uuid.UUID) models.Player {
	t.Helper()
	var player *models.Player
	f.view(t, func(tx store.Tx) (err error) {
		player, err = tx.GetPlayer(context.Background(), id)
		return err
	})
	return *player
}

// Queue reads the active queue of the fixture partition.
func (f *Fixture) Queue(t testing.TB) []models.QueueEntry {
	t.Helper()
	var entries []models.QueueEntry
	f.view(t, func(tx store.Tx) (err error) {
		entries, err = tx.ListQueue(context.Background(), f.Key)
		return err
	})
	return entries
}

// Events drains the unsent outbox.
func (f *Fixture) Events(t testing.TB) []models.OutboxEvent {
	t.Helper()
	var evs []models.OutboxEvent
	f.view(t, func(tx store.Tx) error {
		var err error
		if evs, err = tx.FetchUnsent(context.Background(), 0); err != nil {
			return err
		}
		ids := make([]uuid.UUID, len(evs))
		for i, ev := range evs {
			ids[i] = ev.ID
		}
		return tx.MarkSent(context.Background(), ids)
	})
	return evs
}

// EventTypes returns the types of the drained outbox events in commit order.
func (f *Fixture) EventTypes(t testing.TB) []string {
	t.Helper()
	evs := f.Events(t)
	types := make([]string, len(evs))
	for i, ev := range evs {
		types[i] = ev.EventType
	}
	return types
}

func (f *Fixture) view(t testing.TB, fn func(tx store.Tx) error) {
	t.Helper()
	require.NoError(t, f.Store.Run(context.Background(), fn))
}
