// Package memstore is an in-memory store.Store used by tests and single-process development runs.
//
// Transactions hold one store-wide lock and roll back by restoring a copy of the data taken at BEGIN.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// Store keeps every table in maps guarded by a single mutex.
type Store struct {
	mu    sync.Mutex
	clock clockwork.Clock
	data  *tables
}

type tables struct {
	players map[uuid.UUID]models.Player
	teams   map[uuid.UUID]models.Team
	entries map[uuid.UUID]models.QueueEntry
	rounds  map[uuid.UUID]models.Round
	order   []uuid.UUID // round ids in creation order
	outbox  []models.OutboxEvent
	seqs    map[models.PartitionKey]int64
	prefs   map[uuid.UUID][]models.Preference
}

var _ store.Store = (*Store)(nil)

// New creates an empty store. A nil clock means the real clock.
func New(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock: clock,
		data: &tables{
			players: make(map[uuid.UUID]models.Player),
			teams:   make(map[uuid.UUID]models.Team),
			entries: make(map[uuid.UUID]models.QueueEntry),
			rounds:  make(map[uuid.UUID]models.Round),
			seqs:    make(map[models.PartitionKey]int64),
			prefs:   make(map[uuid.UUID][]models.Preference),
		},
	}
}

// AddPlayers loads players outside of any transaction.
func (s *Store) AddPlayers(players ...models.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range players {
		if p.Status == "" {
			p.Status = models.PlayerStatusAvailable
		}
		s.data.players[p.ID] = p
	}
}

// AddTeams loads teams outside of any transaction.
func (s *Store) AddTeams(teams ...models.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range teams {
		s.data.teams[t.ID] = t
	}
}

// SetPreferences replaces a team's preferred-player list.
func (s *Store) SetPreferences(teamID uuid.UUID, prefs []models.Preference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.prefs[teamID] = append([]models.Preference(nil), prefs...)
}

// RunInTx implements store.Store. Every transaction is serialized, whatever its key.
func (s *Store) RunInTx(ctx context.Context, _ models.PartitionKey, fn func(tx store.Tx) error) error {
	return s.Run(ctx, fn)
}

// Run implements store.Store.
func (s *Store) Run(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.data.clone()
	if err := fn(&memTx{t: s.data, clock: s.clock}); err != nil {
		s.data = before
		return err
	}
	return nil
}

func (t *tables) clone() *tables {
	c := &tables{
		players: make(map[uuid.UUID]models.Player, len(t.players)),
		teams:   make(map[uuid.UUID]models.Team, len(t.teams)),
		entries: make(map[uuid.UUID]models.QueueEntry, len(t.entries)),
		rounds:  make(map[uuid.UUID]models.Round, len(t.rounds)),
		order:   append([]uuid.UUID(nil), t.order...),
		outbox:  append([]models.OutboxEvent(nil), t.outbox...),
		seqs:    make(map[models.PartitionKey]int64, len(t.seqs)),
		prefs:   make(map[uuid.UUID][]models.Preference, len(t.prefs)),
	}
	for k, v := range t.players {
		c.players[k] = v
	}
	for k, v := range t.teams {
		c.teams[k] = v
	}
	for k, v := range t.entries {
		c.entries[k] = v
	}
	for k, v := range t.rounds {
		c.rounds[k] = copyRound(v)
	}
	for k, v := range t.seqs {
		c.seqs[k] = v
	}
	for k, v := range t.prefs {
		c.prefs[k] = v
	}
	return c
}

func copyRound(r models.Round) models.Round {
	r.Bids = append([]models.Bid(nil), r.Bids...)
	return r
}

type memTx struct {
	t     *tables
	clock clockwork.Clock
}

// Queue

func (m *memTx) ListQueue(_ context.Context, key models.PartitionKey) ([]models.QueueEntry, error) {
	var out []models.QueueEntry
	for _, e := range m.t.entries {
		if !e.IsProcessed && e.Key() == key {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memTx) GetQueueEntry(_ context.Context, id uuid.UUID) (*models.QueueEntry, error) {
	e, ok := m.t.entries[id]
	if !ok {
		return nil, fmt.Errorf("queue entry %s: %w", id, auctionerr.ErrNotFound)
	}
	return &e, nil
}

func (m *memTx) FindQueuedEntry(_ context.Context, key models.PartitionKey, playerID uuid.UUID) (*models.QueueEntry, error) {
	for _, e := range m.t.entries {
		if !e.IsProcessed && e.PlayerID == playerID && e.Key() == key {
			return &e, nil
		}
	}
	return nil, nil
}

func (m *memTx) InsertQueueEntry(_ context.Context, entry models.QueueEntry) error {
	if _, ok := m.t.entries[entry.ID]; ok {
		return fmt.Errorf("queue entry %s already exists: %w", entry.ID, auctionerr.ErrConcurrencyConflict)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.clock.Now()
	}
	m.t.entries[entry.ID] = entry
	return nil
}

func (m *memTx) DeleteQueueEntry(_ context.Context, id uuid.UUID) error {
	if _, ok := m.t.entries[id]; !ok {
		return fmt.Errorf("queue entry %s: %w", id, auctionerr.ErrNotFound)
	}
	delete(m.t.entries, id)

	// pending rounds go with their entry
	kept := m.t.order[:0:0]
	for _, rid := range m.t.order {
		if r := m.t.rounds[rid]; r.QueueEntryID == id {
			delete(m.t.rounds, rid)
			continue
		}
		kept = append(kept, rid)
	}
	m.t.order = kept
	return nil
}

func (m *memTx) UpdateQueuePositions(_ context.Context, entries []models.QueueEntry) error {
	for _, e := range entries {
		cur, ok := m.t.entries[e.ID]
		if !ok {
			return fmt.Errorf("queue entry %s: %w", e.ID, auctionerr.ErrNotFound)
		}
		cur.Position = e.Position
		m.t.entries[e.ID] = cur
	}
	return nil
}

func (m *memTx) MarkQueueEntryProcessed(_ context.Context, id uuid.UUID) error {
	e, ok := m.t.entries[id]
	if !ok {
		return fmt.Errorf("queue entry %s: %w", id, auctionerr.ErrNotFound)
	}
	e.IsProcessed = true
	m.t.entries[id] = e
	return nil
}

// Players

func (m *memTx) GetPlayer(_ context.Context, id uuid.UUID) (*models.Player, error) {
	p, ok := m.t.players[id]
	if !ok {
		return nil, fmt.Errorf("player %s: %w", id, auctionerr.ErrNotFound)
	}
	return &p, nil
}

func (m *memTx) ListPlayers(_ context.Context, ids []uuid.UUID) ([]models.Player, error) {
	out := make([]models.Player, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.t.players[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memTx) UpdatePlayerStatus(_ context.Context, id uuid.UUID, status models.PlayerStatus, teamID *uuid.UUID) error {
	p, ok := m.t.players[id]
	if !ok {
		return fmt.Errorf("player %s: %w", id, auctionerr.ErrNotFound)
	}
	p.Status = status
	p.CurrentTeamID = nil
	if teamID != nil {
		tid := *teamID
		p.CurrentTeamID = &tid
	}
	m.t.players[id] = p
	return nil
}

// Teams

func (m *memTx) GetTeam(_ context.Context, id uuid.UUID) (*models.Team, error) {
	t, ok := m.t.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", id, auctionerr.ErrNotFound)
	}
	t.CurrentPlayers = m.rosterSize(id)
	return &t, nil
}

func (m *memTx) LockTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	return m.GetTeam(ctx, id)
}

func (m *memTx) ListTeams(_ context.Context, tournamentID uuid.UUID) ([]models.Team, error) {
	var out []models.Team
	for _, t := range m.t.teams {
		if t.TournamentID == tournamentID {
			t.CurrentPlayers = m.rosterSize(t.ID)
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memTx) UpdateTeamBudget(_ context.Context, id uuid.UUID, remaining int64) error {
	t, ok := m.t.teams[id]
	if !ok {
		return fmt.Errorf("team %s: %w", id, auctionerr.ErrNotFound)
	}
	t.RemainingBudget = remaining
	m.t.teams[id] = t
	return nil
}

func (m *memTx) rosterSize(teamID uuid.UUID) int {
	n := 0
	for _, p := range m.t.players {
		if p.Status == models.PlayerStatusAllocated && p.CurrentTeamID != nil && *p.CurrentTeamID == teamID {
			n++
		}
	}
	return n
}

// Rounds

func (m *memTx) InsertRound(_ context.Context, r models.Round) error {
	if _, ok := m.t.rounds[r.ID]; ok {
		return fmt.Errorf("round %s already exists: %w", r.ID, auctionerr.ErrConcurrencyConflict)
	}
	if r.Status == models.RoundStatusInProgress {
		if active, _ := m.ActiveRound(context.Background(), r.Key()); active != nil {
			return fmt.Errorf("round %s for %s: %w", active.ID, r.Key(), auctionerr.ErrRoundAlreadyActive)
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.clock.Now()
	}
	m.t.rounds[r.ID] = copyRound(r)
	m.t.order = append(m.t.order, r.ID)
	return nil
}

func (m *memTx) UpdateRound(_ context.Context, r models.Round) error {
	cur, ok := m.t.rounds[r.ID]
	if !ok {
		return fmt.Errorf("round %s: %w", r.ID, auctionerr.ErrNotFound)
	}
	if r.Status == models.RoundStatusInProgress && cur.Status != models.RoundStatusInProgress {
		if active, _ := m.ActiveRound(context.Background(), r.Key()); active != nil {
			return fmt.Errorf("round %s for %s: %w", active.ID, r.Key(), auctionerr.ErrRoundAlreadyActive)
		}
	}
	m.t.rounds[r.ID] = copyRound(r)
	return nil
}

func (m *memTx) GetRound(_ context.Context, id uuid.UUID) (*models.Round, error) {
	r, ok := m.t.rounds[id]
	if !ok {
		return nil, fmt.Errorf("round %s: %w", id, auctionerr.ErrNotFound)
	}
	r = copyRound(r)
	return &r, nil
}

func (m *memTx) ActiveRound(_ context.Context, key models.PartitionKey) (*models.Round, error) {
	for _, id := range m.t.order {
		r := m.t.rounds[id]
		if r.Status == models.RoundStatusInProgress && r.Key() == key {
			r = copyRound(r)
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memTx) LatestRoundForPlayer(_ context.Context, playerID uuid.UUID) (*models.Round, error) {
	for i := len(m.t.order) - 1; i >= 0; i-- {
		r := m.t.rounds[m.t.order[i]]
		if r.PlayerID == playerID {
			r = copyRound(r)
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memTx) CurrentRoundForPlayer(_ context.Context, playerID uuid.UUID) (*models.Round, error) {
	for i := len(m.t.order) - 1; i >= 0; i-- {
		r := m.t.rounds[m.t.order[i]]
		if r.PlayerID == playerID && r.Status != models.RoundStatusUndone {
			r = copyRound(r)
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memTx) PendingRoundForEntry(_ context.Context, entryID uuid.UUID) (*models.Round, error) {
	for _, id := range m.t.order {
		r := m.t.rounds[id]
		if r.QueueEntryID == entryID && r.Status == models.RoundStatusNotStarted {
			r = copyRound(r)
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memTx) ListInProgressRounds(_ context.Context) ([]models.Round, error) {
	var out []models.Round
	for _, id := range m.t.order {
		if r := m.t.rounds[id]; r.Status == models.RoundStatusInProgress {
			out = append(out, copyRound(r))
		}
	}
	return out, nil
}

// Outbox

func (m *memTx) AppendEvent(_ context.Context, key models.PartitionKey, eventType string, payload []byte) (*models.OutboxEvent, error) {
	m.t.seqs[key]++
	ev := models.OutboxEvent{
		ID:           uuid.New(),
		TournamentID: key.TournamentID,
		Category:     key.Category,
		Seq:          m.t.seqs[key],
		EventType:    eventType,
		Payload:      append([]byte(nil), payload...),
		CreatedAt:    m.clock.Now(),
	}
	m.t.outbox = append(m.t.outbox, ev)
	return &ev, nil
}

func (m *memTx) CurrentSeq(_ context.Context, key models.PartitionKey) (int64, error) {
	return m.t.seqs[key], nil
}

func (m *memTx) FetchUnsent(_ context.Context, limit int) ([]models.OutboxEvent, error) {
	var out []models.OutboxEvent
	for _, ev := range m.t.outbox {
		if limit > 0 && len(out) >= limit {
			break
		}
		if ev.SentAt == nil {
			out = append(out, ev)
		}
	}
	return out, nil
}

// MarkSent drops relayed events; the in-memory outbox keeps no audit trail.
func (m *memTx) MarkSent(_ context.Context, ids []uuid.UUID) error {
	sent := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		sent[id] = struct{}{}
	}
	kept := m.t.outbox[:0:0]
	for _, ev := range m.t.outbox {
		if _, ok := sent[ev.ID]; !ok {
			kept = append(kept, ev)
		}
	}
	m.t.outbox = kept
	return nil
}

// Preferences

func (m *memTx) ListPreferences(_ context.Context, teamID uuid.UUID) ([]models.Preference, error) {
	prefs := append([]models.Preference(nil), m.t.prefs[teamID]...)
	sort.SliceStable(prefs, func(i, j int) bool { return prefs[i].Rank < prefs[j].Rank })
	return prefs, nil
}
