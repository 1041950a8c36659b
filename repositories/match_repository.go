package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/Dosada05/bracket-automation/models"
	"github.com/lib/pq"
)

type MatchRepository interface {
	CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	GetByPosition(ctx context.Context, tournamentID int, pos models.MatchPosition) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error)
	// ListByTournaments loads every match of the given tournaments in one round trip.
	ListByTournaments(ctx context.Context, tournamentIDs []int) (map[int][]*models.Match, error)
	// GetCompletedMatches returns completed matches with a winner, ordered by round then match number.
	GetCompletedMatches(ctx context.Context, tournamentID int) ([]*models.Match, error)
	// UpdateMatchSlot fills an empty player slot. A filled slot yields a conflict.
	// The match becomes ready in the same statement once both slots hold a player.
	UpdateMatchSlot(ctx context.Context, matchID int, slot models.Slot, playerID int) (*models.Match, error)
	// RecordResult completes a ready or ongoing match exactly once.
	RecordResult(ctx context.Context, matchID int, winnerID int, score *string) (*models.Match, error)
	MarkOngoing(ctx context.Context, matchID int) (*models.Match, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `id, tournament_id, round, match_number, branch, player1_id, player2_id, winner_id, status, score, created_at, updated_at`

func scanMatch(row interface{ Scan(dest ...any) error }) (*models.Match, error) {
	m := &models.Match{}
	err := row.Scan(
		&m.ID,
		&m.TournamentID,
		&m.Round,
		&m.MatchNumber,
		&m.Branch,
		&m.Player1ID,
		&m.Player2ID,
		&m.WinnerID,
		&m.Status,
		&m.Score,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) queryMatches(ctx context.Context, op string, query string, args ...interface{}) ([]*models.Match, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, decodeError(op, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, decodeError(op, fmt.Errorf("scan match row: %w", scanErr))
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, decodeError(op, err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.Match) error {
	query := `
		INSERT INTO matches (tournament_id, round, match_number, branch, player1_id, player2_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	executor := r.getExecutor(exec)
	for _, m := range matches {
		err := executor.QueryRowContext(ctx, query,
			m.TournamentID,
			m.Round,
			m.MatchNumber,
			m.Branch,
			m.Player1ID,
			m.Player2ID,
			m.Status,
		).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return decodeError("create match "+m.Position().String(), err)
		}
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	m, err := scanMatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, decodeError("get match "+strconv.Itoa(id), err)
	}
	return m, nil
}

func (r *postgresMatchRepository) GetByPosition(ctx context.Context, tournamentID int, pos models.MatchPosition) (*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE tournament_id = $1 AND branch = $2 AND round = $3 AND match_number = $4`

	m, err := scanMatch(r.db.QueryRowContext(ctx, query, tournamentID, pos.Branch, pos.Round, pos.MatchNumber))
	if err != nil {
		return nil, decodeError(fmt.Sprintf("get match %s of tournament %d", pos, tournamentID), err)
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE tournament_id = $1
		ORDER BY round ASC, match_number ASC, id ASC`

	return r.queryMatches(ctx, "list matches of tournament "+strconv.Itoa(tournamentID), query, tournamentID)
}

func (r *postgresMatchRepository) ListByTournaments(ctx context.Context, tournamentIDs []int) (map[int][]*models.Match, error) {
	byTournament := make(map[int][]*models.Match, len(tournamentIDs))
	if len(tournamentIDs) == 0 {
		return byTournament, nil
	}

	ids := make([]int64, len(tournamentIDs))
	for i, id := range tournamentIDs {
		ids[i] = int64(id)
	}

	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE tournament_id = ANY($1)
		ORDER BY tournament_id ASC, round ASC, match_number ASC`

	matches, err := r.queryMatches(ctx, "list matches of tournaments", query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		byTournament[m.TournamentID] = append(byTournament[m.TournamentID], m)
	}
	return byTournament, nil
}

func (r *postgresMatchRepository) GetCompletedMatches(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE tournament_id = $1 AND status = $2 AND winner_id IS NOT NULL
		ORDER BY round ASC, match_number ASC`

	return r.queryMatches(ctx, "list completed matches of tournament "+strconv.Itoa(tournamentID), query, tournamentID, models.MatchStatusCompleted)
}

func (r *postgresMatchRepository) UpdateMatchSlot(ctx context.Context, matchID int, slot models.Slot, playerID int) (*models.Match, error) {
	op := fmt.Sprintf("fill slot %s of match %d", slot, matchID)
	if !slot.Valid() {
		return nil, newStoreError(KindInvalid, op, fmt.Errorf("unknown slot %q", slot))
	}
	column := slot.Column()
	other := models.SlotA.Column()
	if slot == models.SlotA {
		other = models.SlotB.Column()
	}

	query := fmt.Sprintf(`
		UPDATE matches
		SET %[1]s = $1,
		    status = CASE WHEN status = 'pending' AND %[2]s IS NOT NULL THEN 'ready' ELSE status END,
		    updated_at = NOW()
		WHERE id = $2 AND %[1]s IS NULL
		RETURNING `+matchColumns, column, other)

	m, err := scanMatch(r.db.QueryRowContext(ctx, query, playerID, matchID))
	if err == nil {
		return m, nil
	}
	if err != sql.ErrNoRows {
		return nil, decodeError(op, err)
	}
	return nil, r.conflictOrMissing(ctx, op, matchID)
}

func (r *postgresMatchRepository) RecordResult(ctx context.Context, matchID int, winnerID int, score *string) (*models.Match, error) {
	op := "record result of match " + strconv.Itoa(matchID)
	query := `
		UPDATE matches
		SET winner_id = $1, score = $2, status = 'completed', updated_at = NOW()
		WHERE id = $3
		  AND status IN ('ready', 'ongoing')
		  AND winner_id IS NULL
		  AND ($1 = player1_id OR $1 = player2_id)
		RETURNING ` + matchColumns

	m, err := scanMatch(r.db.QueryRowContext(ctx, query, winnerID, score, matchID))
	if err == nil {
		return m, nil
	}
	if err != sql.ErrNoRows {
		return nil, decodeError(op, err)
	}
	return nil, r.conflictOrMissing(ctx, op, matchID)
}

func (r *postgresMatchRepository) MarkOngoing(ctx context.Context, matchID int) (*models.Match, error) {
	op := "start match " + strconv.Itoa(matchID)
	query := `
		UPDATE matches
		SET status = 'ongoing', updated_at = NOW()
		WHERE id = $1 AND status = 'ready'
		RETURNING ` + matchColumns

	m, err := scanMatch(r.db.QueryRowContext(ctx, query, matchID))
	if err == nil {
		return m, nil
	}
	if err != sql.ErrNoRows {
		return nil, decodeError(op, err)
	}
	return nil, r.conflictOrMissing(ctx, op, matchID)
}

func (r *postgresMatchRepository) conflictOrMissing(ctx context.Context, op string, matchID int) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM matches WHERE id = $1)`, matchID).Scan(&exists)
	if err != nil {
		return decodeError(op, err)
	}
	if !exists {
		return newStoreError(KindNotFound, op, nil)
	}
	return newStoreError(KindConflict, op, nil)
}
