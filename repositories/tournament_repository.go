package repositories

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/Dosada05/bracket-automation/models"
	"github.com/lib/pq"
)

type ListTournamentsFilter struct {
	BracketType *models.BracketType
	Statuses    []models.TournamentStatus
	Limit       int
	Offset      int
}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]*models.Tournament, error)
	// UpdateTournamentStatus moves the tournament from one status to another.
	// It fails with a conflict when the current status is not from.
	UpdateTournamentStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error
	// Complete marks an ongoing tournament completed with its champion.
	Complete(ctx context.Context, exec SQLExecutor, id int, winnerID int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `id, name, bracket_type, status, participant_count, winner_id, created_at, updated_at`

func scanTournament(row interface{ Scan(dest ...any) error }) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.BracketType,
		&t.Status,
		&t.ParticipantCount,
		&t.WinnerID,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (name, bracket_type, status, participant_count)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, t.Name, t.BracketType, t.Status, t.ParticipantCount).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return decodeError("create tournament", err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t, err := scanTournament(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, decodeError("get tournament "+strconv.Itoa(id), err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]*models.Tournament, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + tournamentColumns + ` FROM tournaments WHERE 1=1`)

	args := []interface{}{}
	placeholderIndex := 1

	if filter.BracketType != nil {
		queryBuilder.WriteString(" AND bracket_type = $" + strconv.Itoa(placeholderIndex))
		args = append(args, *filter.BracketType)
		placeholderIndex++
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		queryBuilder.WriteString(" AND status = ANY($" + strconv.Itoa(placeholderIndex) + ")")
		args = append(args, pq.Array(statuses))
		placeholderIndex++
	}

	queryBuilder.WriteString(" ORDER BY id ASC")

	if filter.Limit > 0 {
		queryBuilder.WriteString(" LIMIT $" + strconv.Itoa(placeholderIndex))
		args = append(args, filter.Limit)
		placeholderIndex++
	}
	if filter.Offset > 0 {
		queryBuilder.WriteString(" OFFSET $" + strconv.Itoa(placeholderIndex))
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, decodeError("list tournaments", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, decodeError("scan tournament", scanErr)
		}
		tournaments = append(tournaments, t)
	}
	if err := rows.Err(); err != nil {
		return nil, decodeError("iterate tournaments", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) UpdateTournamentStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error {
	op := "update tournament " + strconv.Itoa(id) + " status"
	query := `UPDATE tournaments SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, to, id, from)
	if err != nil {
		return decodeError(op, err)
	}
	if err := checkAffectedRows(op, result, KindConflict); err != nil {
		return r.conflictOrMissing(ctx, exec, op, id, err)
	}
	return nil
}

func (r *postgresTournamentRepository) Complete(ctx context.Context, exec SQLExecutor, id int, winnerID int) error {
	op := "complete tournament " + strconv.Itoa(id)
	query := `
		UPDATE tournaments
		SET status = $1, winner_id = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, models.StatusCompleted, winnerID, id, models.StatusOngoing)
	if err != nil {
		return decodeError(op, err)
	}
	if err := checkAffectedRows(op, result, KindConflict); err != nil {
		return r.conflictOrMissing(ctx, exec, op, id, err)
	}
	return nil
}

// conflictOrMissing tells a failed conditional update on a missing row apart
// from one whose precondition did not hold.
func (r *postgresTournamentRepository) conflictOrMissing(ctx context.Context, exec SQLExecutor, op string, id int, conflict error) error {
	var exists bool
	err := r.getExecutor(exec).QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tournaments WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return decodeError(op, err)
	}
	if !exists {
		return newStoreError(KindNotFound, op, nil)
	}
	return conflict
}
