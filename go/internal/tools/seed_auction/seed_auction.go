package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/tourney-auction/go/internal/dbconfig"
)

// Seed mirrors the JSON snapshot layout
type Seed struct {
	TournamentID uuid.UUID    `json:"tournament_id"`
	Teams        []Team       `json:"teams"`
	Players      []Player     `json:"players"`
	Preferences  []Preference `json:"preferences"`
}

type Team struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Budget     int64     `json:"budget"`
	MaxPlayers int       `json:"max_players"`
}

type Player struct {
	ID         uuid.UUID `json:"id"`
	FullName   string    `json:"full_name"`
	Position   string    `json:"position"`
	SkillLevel string    `json:"skill_level"`
	BasePrice  int64     `json:"base_price"`
	Category   string    `json:"category"`
}

type Preference struct {
	TeamID   uuid.UUID `json:"team_id"`
	PlayerID uuid.UUID `json:"player_id"`
	Rank     int       `json:"rank"`
}

func main() {
	var (
		file       = flag.String("file", "go/internal/assets/auction_seed.json", "JSON snapshot to load")
		generate   = flag.Bool("generate", false, "generate a random tournament instead of reading -file")
		teams      = flag.Int("teams", 8, "teams to generate")
		players    = flag.Int("players", 64, "players to generate")
		categories = flag.String("categories", "football", "comma separated categories to generate")
		seed       = flag.Int64("seed", 0, "random seed for -generate (0 picks one)")
	)
	flag.Parse()
	ctx := context.Background()

	// 1) Load or generate the snapshot
	var (
		s   *Seed
		err error
	)
	if *generate {
		s = generateSeed(*seed, *teams, *players, strings.Split(*categories, ","))
	} else if s, err = readSeed(*file); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Copy each table and count
	for _, step := range []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{"auction_teams", []string{"id", "tournament_id", "name", "initial_budget", "remaining_budget", "max_players", "created_at"}, teamRows(s)},
		{"auction_players", []string{"id", "tournament_id", "full_name", "position", "skill_level", "base_price", "category", "status", "created_at"}, playerRows(s)},
		{"auction_preferences", []string{"team_id", "player_id", "rank"}, preferenceRows(s)},
	} {
		inserted, err := copyIgnoringConflicts(ctx, pool, step.table, step.columns, step.rows)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed %s: %v\n", step.table, err)
			os.Exit(1)
		}
		fmt.Printf("%s seed: total=%d inserted=%d skipped=%d\n",
			step.table, len(step.rows), inserted, int64(len(step.rows))-inserted)
	}
	fmt.Printf("Tournament %s seeded\n", s.TournamentID)
}

func readSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read JSON: %w", err)
	}
	var s Seed
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	if s.TournamentID == uuid.Nil {
		return nil, fmt.Errorf("tournament_id is required")
	}
	return &s, nil
}

func generateSeed(seed int64, nTeams, nPlayers int, categories []string) *Seed {
	f := gofakeit.New(uint64(seed))
	s := &Seed{TournamentID: uuid.New()}

	for range nTeams {
		s.Teams = append(s.Teams, Team{
			ID:         uuid.New(),
			Name:       f.Company(),
			Budget:     int64(f.IntRange(50, 150)) * 10_000,
			MaxPlayers: f.IntRange(8, 15),
		})
	}
	for i := range nPlayers {
		s.Players = append(s.Players, Player{
			ID:         uuid.New(),
			FullName:   f.Name(),
			Position:   f.RandomString([]string{"striker", "midfielder", "defender", "goalkeeper"}),
			SkillLevel: f.RandomString([]string{"beginner", "intermediate", "advanced"}),
			BasePrice:  int64(f.IntRange(1, 20)) * 5_000,
			Category:   strings.TrimSpace(categories[i%len(categories)]),
		})
	}
	// each team ranks a handful of players
	for _, t := range s.Teams {
		picked := map[uuid.UUID]bool{}
		for rank := 1; rank <= min(5, len(s.Players)); {
			p := s.Players[f.IntN(len(s.Players))]
			if picked[p.ID] {
				continue
			}
			picked[p.ID] = true
			s.Preferences = append(s.Preferences, Preference{TeamID: t.ID, PlayerID: p.ID, Rank: rank})
			rank++
		}
	}
	return s
}

func teamRows(s *Seed) [][]any {
	now := time.Now()
	rows := make([][]any, len(s.Teams))
	for i, t := range s.Teams {
		rows[i] = []any{t.ID, s.TournamentID, t.Name, t.Budget, t.Budget, t.MaxPlayers, now}
	}
	return rows
}

func playerRows(s *Seed) [][]any {
	now := time.Now()
	rows := make([][]any, len(s.Players))
	for i, p := range s.Players {
		rows[i] = []any{p.ID, s.TournamentID, p.FullName, p.Position, p.SkillLevel, p.BasePrice, p.Category, "AVAILABLE", now}
	}
	return rows
}

func preferenceRows(s *Seed) [][]any {
	rows := make([][]any, len(s.Preferences))
	for i, p := range s.Preferences {
		rows[i] = []any{p.TeamID, p.PlayerID, p.Rank}
	}
	return rows
}

// copyIgnoringConflicts bulk loads rows through a temp table so reruns skip existing rows
// instead of failing the COPY.
func copyIgnoringConflicts(ctx context.Context, pool *pgxpool.Pool, table string, columns []string, rows [][]any) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tmp := "seed_" + table
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", tmp, table)); err != nil {
		return 0, fmt.Errorf("create temp table: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tmp}, columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, fmt.Errorf("copy: %w", err)
	}

	cols := strings.Join(columns, ", ")
	tag, err := tx.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT DO NOTHING", table, cols, cols, tmp))
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
