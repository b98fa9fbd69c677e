package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/mcdev12/tourney-auction/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// queries binds every store.Tx method to one *sql.Tx.
type queries struct {
	tx *sql.Tx
}

type scanner interface {
	Scan(dest ...any) error
}

func notFound(err error, what string, id uuid.UUID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, auctionerr.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// Queue

const queueColumns = `id, tournament_id, category, player_id, position, is_processed, created_at`

func scanEntry(row scanner) (*models.QueueEntry, error) {
	var e models.QueueEntry
	if err := row.Scan(&e.ID, &e.TournamentID, &e.Category, &e.PlayerID, &e.Position, &e.IsProcessed, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (q *queries) ListQueue(ctx context.Context, key models.PartitionKey) ([]models.QueueEntry, error) {
	rows, err := q.tx.QueryContext(ctx, `SELECT `+queueColumns+` FROM auction_queue_entries
		WHERE tournament_id = $1 AND category = $2 AND NOT is_processed
		ORDER BY position`, key.TournamentID, key.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	var out []models.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (q *queries) GetQueueEntry(ctx context.Context, id uuid.UUID) (*models.QueueEntry, error) {
	e, err := scanEntry(q.tx.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM auction_queue_entries WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "queue entry", id)
	}
	return e, nil
}

func (q *queries) FindQueuedEntry(ctx context.Context, key models.PartitionKey, playerID uuid.UUID) (*models.QueueEntry, error) {
	e, err := scanEntry(q.tx.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM auction_queue_entries
		WHERE tournament_id = $1 AND category = $2 AND player_id = $3 AND NOT is_processed`,
		key.TournamentID, key.Category, playerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find queued entry: %w", err)
	}
	return e, nil
}

func (q *queries) InsertQueueEntry(ctx context.Context, e models.QueueEntry) error {
	_, err := q.tx.ExecContext(ctx, `INSERT INTO auction_queue_entries
		(id, tournament_id, category, player_id, position, is_processed)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.TournamentID, e.Category, e.PlayerID, e.Position, e.IsProcessed)
	if err != nil {
		return fmt.Errorf("failed to insert queue entry: %w", err)
	}
	return nil
}

func (q *queries) DeleteQueueEntry(ctx context.Context, id uuid.UUID) error {
	res, err := q.tx.ExecContext(ctx, `DELETE FROM auction_queue_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("queue entry %s: %w", id, auctionerr.ErrNotFound)
	}
	return nil
}

// UpdateQueuePositions parks the rows on negative positions first so the partial unique
// index never sees two live entries on one position mid-statement.
func (q *queries) UpdateQueuePositions(ctx context.Context, entries []models.QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if _, err := q.tx.ExecContext(ctx, `UPDATE auction_queue_entries SET position = -position
		WHERE id = ANY($1::uuid[])`, pq.Array(idStrings(ids))); err != nil {
		return fmt.Errorf("failed to park queue positions: %w", err)
	}
	for _, e := range entries {
		if _, err := q.tx.ExecContext(ctx, `UPDATE auction_queue_entries SET position = $2 WHERE id = $1`,
			e.ID, e.Position); err != nil {
			return fmt.Errorf("failed to update queue position: %w", err)
		}
	}
	return nil
}

func (q *queries) MarkQueueEntryProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := q.tx.ExecContext(ctx, `UPDATE auction_queue_entries SET is_processed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark queue entry processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("queue entry %s: %w", id, auctionerr.ErrNotFound)
	}
	return nil
}

// Players

const playerColumns = `id, tournament_id, full_name, position, skill_level, base_price, category, status, current_team_id, created_at`

func scanPlayer(row scanner) (*models.Player, error) {
	var (
		p      models.Player
		status string
		teamID uuid.NullUUID
	)
	if err := row.Scan(&p.ID, &p.TournamentID, &p.FullName, &p.Position, &p.SkillLevel,
		&p.BasePrice, &p.Category, &status, &teamID, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Status = models.PlayerStatus(status)
	p.CurrentTeamID = sqlutil.FromNullUUID(teamID)
	return &p, nil
}

func (q *queries) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	p, err := scanPlayer(q.tx.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM auction_players WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "player", id)
	}
	return p, nil
}

func (q *queries) ListPlayers(ctx context.Context, ids []uuid.UUID) ([]models.Player, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.tx.QueryContext(ctx, `SELECT `+playerColumns+` FROM auction_players
		WHERE id = ANY($1::uuid[])`, pq.Array(idStrings(ids)))
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var out []models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (q *queries) UpdatePlayerStatus(ctx context.Context, id uuid.UUID, status models.PlayerStatus, teamID *uuid.UUID) error {
	res, err := q.tx.ExecContext(ctx, `UPDATE auction_players SET status = $2, current_team_id = $3 WHERE id = $1`,
		id, string(status), sqlutil.ToNullUUID(teamID))
	if err != nil {
		return fmt.Errorf("failed to update player status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("player %s: %w", id, auctionerr.ErrNotFound)
	}
	return nil
}

// Teams

const teamColumns = `id, tournament_id, name, initial_budget, remaining_budget, max_players, created_at`

func scanTeam(row scanner) (*models.Team, error) {
	var t models.Team
	if err := row.Scan(&t.ID, &t.TournamentID, &t.Name, &t.InitialBudget, &t.RemainingBudget,
		&t.MaxPlayers, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (q *queries) rosterSize(ctx context.Context, teamID uuid.UUID) (int, error) {
	var n int
	err := q.tx.QueryRowContext(ctx, `SELECT count(*) FROM auction_players
		WHERE current_team_id = $1 AND status = 'ALLOCATED'`, teamID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count roster: %w", err)
	}
	return n, nil
}

func (q *queries) getTeam(ctx context.Context, id uuid.UUID, lock bool) (*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM auction_teams WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	t, err := scanTeam(q.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "team", id)
	}
	// counted after the row lock so a concurrent commit in another category is visible
	if t.CurrentPlayers, err = q.rosterSize(ctx, id); err != nil {
		return nil, err
	}
	return t, nil
}

func (q *queries) GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	return q.getTeam(ctx, id, false)
}

func (q *queries) LockTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	return q.getTeam(ctx, id, true)
}

func (q *queries) ListTeams(ctx context.Context, tournamentID uuid.UUID) ([]models.Team, error) {
	rows, err := q.tx.QueryContext(ctx, `SELECT t.id, t.tournament_id, t.name, t.initial_budget,
			t.remaining_budget, t.max_players, t.created_at,
			(SELECT count(*) FROM auction_players p WHERE p.current_team_id = t.id AND p.status = 'ALLOCATED')
		FROM auction_teams t WHERE t.tournament_id = $1 ORDER BY t.name`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var out []models.Team
	for rows.Next() {
		var t models.Team
		if err := rows.Scan(&t.ID, &t.TournamentID, &t.Name, &t.InitialBudget, &t.RemainingBudget,
			&t.MaxPlayers, &t.CreatedAt, &t.CurrentPlayers); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *queries) UpdateTeamBudget(ctx context.Context, id uuid.UUID, remaining int64) error {
	res, err := q.tx.ExecContext(ctx, `UPDATE auction_teams SET remaining_budget = $2 WHERE id = $1`, id, remaining)
	if err != nil {
		return fmt.Errorf("failed to update team budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("team %s: %w", id, auctionerr.ErrNotFound)
	}
	return nil
}

// Rounds

const roundColumns = `id, tournament_id, category, player_id, queue_entry_id, status, starting_price,
	winning_team_id, final_points, start_time, end_time, bids, created_at`

func scanRound(row scanner) (*models.Round, error) {
	var (
		r          models.Round
		status     string
		winner     uuid.NullUUID
		points     sql.NullInt64
		start, end sql.NullTime
		bids       pqtype.NullRawMessage
	)
	if err := row.Scan(&r.ID, &r.TournamentID, &r.Category, &r.PlayerID, &r.QueueEntryID, &status,
		&r.StartingPrice, &winner, &points, &start, &end, &bids, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Status = models.RoundStatus(status)
	r.WinningTeamID = sqlutil.FromNullUUID(winner)
	r.FinalPoints = sqlutil.FromSqlInt64(points)
	r.StartTime = sqlutil.FromSqlTime(start)
	r.EndTime = sqlutil.FromSqlTime(end)
	if bids.Valid {
		if err := json.Unmarshal(bids.RawMessage, &r.Bids); err != nil {
			return nil, fmt.Errorf("failed to decode bid log: %w", err)
		}
	}
	return &r, nil
}

func encodeBids(bids []models.Bid) (pqtype.NullRawMessage, error) {
	if len(bids) == 0 {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(bids)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to encode bid log: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

func (q *queries) InsertRound(ctx context.Context, r models.Round) error {
	bids, err := encodeBids(r.Bids)
	if err != nil {
		return err
	}
	_, err = q.tx.ExecContext(ctx, `INSERT INTO auction_rounds
		(id, tournament_id, category, player_id, queue_entry_id, status, starting_price,
		 winning_team_id, final_points, start_time, end_time, bids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.TournamentID, r.Category, r.PlayerID, r.QueueEntryID, string(r.Status), r.StartingPrice,
		sqlutil.ToNullUUID(r.WinningTeamID), sqlutil.ToSqlInt64(r.FinalPoints),
		sqlutil.ToSqlTime(r.StartTime), sqlutil.ToSqlTime(r.EndTime), bids)
	if err != nil {
		return fmt.Errorf("failed to insert round: %w", err)
	}
	return nil
}

func (q *queries) UpdateRound(ctx context.Context, r models.Round) error {
	bids, err := encodeBids(r.Bids)
	if err != nil {
		return err
	}
	res, err := q.tx.ExecContext(ctx, `UPDATE auction_rounds SET
		status = $2, starting_price = $3, winning_team_id = $4, final_points = $5,
		start_time = $6, end_time = $7, bids = $8
		WHERE id = $1`,
		r.ID, string(r.Status), r.StartingPrice, sqlutil.ToNullUUID(r.WinningTeamID),
		sqlutil.ToSqlInt64(r.FinalPoints), sqlutil.ToSqlTime(r.StartTime), sqlutil.ToSqlTime(r.EndTime), bids)
	if err != nil {
		return fmt.Errorf("failed to update round: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("round %s: %w", r.ID, auctionerr.ErrNotFound)
	}
	return nil
}

func (q *queries) GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	r, err := scanRound(q.tx.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM auction_rounds WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "round", id)
	}
	return r, nil
}

func (q *queries) optionalRound(row *sql.Row) (*models.Round, error) {
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return r, nil
}

func (q *queries) ActiveRound(ctx context.Context, key models.PartitionKey) (*models.Round, error) {
	return q.optionalRound(q.tx.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM auction_rounds
		WHERE tournament_id = $1 AND category = $2 AND status = 'IN_PROGRESS'`, key.TournamentID, key.Category))
}

func (q *queries) LatestRoundForPlayer(ctx context.Context, playerID uuid.UUID) (*models.Round, error) {
	return q.optionalRound(q.tx.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM auction_rounds
		WHERE player_id = $1 ORDER BY created_at DESC LIMIT 1`, playerID))
}

func (q *queries) CurrentRoundForPlayer(ctx context.Context, playerID uuid.UUID) (*models.Round, error) {
	return q.optionalRound(q.tx.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM auction_rounds
		WHERE player_id = $1 AND status <> 'UNDONE' ORDER BY created_at DESC LIMIT 1`, playerID))
}

func (q *queries) PendingRoundForEntry(ctx context.Context, entryID uuid.UUID) (*models.Round, error) {
	return q.optionalRound(q.tx.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM auction_rounds
		WHERE queue_entry_id = $1 AND status = 'NOT_STARTED'`, entryID))
}

func (q *queries) ListInProgressRounds(ctx context.Context) ([]models.Round, error) {
	rows, err := q.tx.QueryContext(ctx, `SELECT `+roundColumns+` FROM auction_rounds
		WHERE status = 'IN_PROGRESS' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-progress rounds: %w", err)
	}
	defer rows.Close()

	var out []models.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Outbox

func (q *queries) AppendEvent(ctx context.Context, key models.PartitionKey, eventType string, payload []byte) (*models.OutboxEvent, error) {
	ev := models.OutboxEvent{
		ID:           uuid.New(),
		TournamentID: key.TournamentID,
		Category:     key.Category,
		EventType:    eventType,
		Payload:      payload,
	}
	err := q.tx.QueryRowContext(ctx, `INSERT INTO auction_partitions (tournament_id, category, last_seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (tournament_id, category) DO UPDATE SET last_seq = auction_partitions.last_seq + 1
		RETURNING last_seq`, key.TournamentID, key.Category).Scan(&ev.Seq)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate event sequence: %w", err)
	}

	err = q.tx.QueryRowContext(ctx, `INSERT INTO auction_outbox
		(id, tournament_id, category, seq, event_type, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		ev.ID, ev.TournamentID, ev.Category, ev.Seq, ev.EventType, []byte(payload)).Scan(&ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return &ev, nil
}

func (q *queries) CurrentSeq(ctx context.Context, key models.PartitionKey) (int64, error) {
	var seq int64
	err := q.tx.QueryRowContext(ctx, `SELECT last_seq FROM auction_partitions
		WHERE tournament_id = $1 AND category = $2`, key.TournamentID, key.Category).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read partition sequence: %w", err)
	}
	return seq, nil
}

func (q *queries) FetchUnsent(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	rows, err := q.tx.QueryContext(ctx, `SELECT id, tournament_id, category, seq, event_type, payload, created_at
		FROM auction_outbox WHERE sent_at IS NULL ORDER BY ordinal LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []models.OutboxEvent
	for rows.Next() {
		var (
			ev      models.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.TournamentID, &ev.Category, &ev.Seq, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (q *queries) MarkSent(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.tx.ExecContext(ctx, `UPDATE auction_outbox SET sent_at = now()
		WHERE id = ANY($1::uuid[]) AND sent_at IS NULL`, pq.Array(idStrings(ids)))
	if err != nil {
		return fmt.Errorf("failed to mark outbox events sent: %w", err)
	}
	return nil
}

// Preferences

func (q *queries) ListPreferences(ctx context.Context, teamID uuid.UUID) ([]models.Preference, error) {
	rows, err := q.tx.QueryContext(ctx, `SELECT team_id, player_id, rank FROM auction_preferences
		WHERE team_id = $1 ORDER BY rank`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	var out []models.Preference
	for rows.Next() {
		var p models.Preference
		if err := rows.Scan(&p.TeamID, &p.PlayerID, &p.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
