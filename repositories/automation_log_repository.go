package repositories

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/bracket-automation/models"
)

// AutomationLogRepository is append-only: there is no update or delete.
type AutomationLogRepository interface {
	Append(ctx context.Context, entry *models.AutomationLogEntry) error
	// Query returns entries of the tournament created at or after since, oldest first.
	// An empty automationType matches every type.
	Query(ctx context.Context, tournamentID int, automationType models.AutomationType, since time.Time) ([]*models.AutomationLogEntry, error)
}

type postgresAutomationLogRepository struct {
	db *sql.DB
}

func NewPostgresAutomationLogRepository(db *sql.DB) AutomationLogRepository {
	return &postgresAutomationLogRepository{db: db}
}

func (r *postgresAutomationLogRepository) Append(ctx context.Context, entry *models.AutomationLogEntry) error {
	query := `
		INSERT INTO automation_logs (tournament_id, match_id, automation_type, status, detail, run_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		entry.TournamentID,
		entry.MatchID,
		entry.Type,
		entry.Status,
		entry.Detail,
		entry.RunID,
	).Scan(&entry.ID, &entry.CreatedAt)
	return decodeError("append automation log", err)
}

func (r *postgresAutomationLogRepository) Query(ctx context.Context, tournamentID int, automationType models.AutomationType, since time.Time) ([]*models.AutomationLogEntry, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT id, tournament_id, match_id, automation_type, status, detail, run_id, created_at
		FROM automation_logs
		WHERE tournament_id = $1 AND created_at >= $2`)
	args := []interface{}{tournamentID, since}

	if automationType != "" {
		queryBuilder.WriteString(" AND automation_type = $3")
		args = append(args, automationType)
	}
	queryBuilder.WriteString(" ORDER BY created_at ASC, id ASC")

	op := "query automation log of tournament " + strconv.Itoa(tournamentID)
	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, decodeError(op, err)
	}
	defer rows.Close()

	entries := make([]*models.AutomationLogEntry, 0)
	for rows.Next() {
		e := &models.AutomationLogEntry{}
		if err := rows.Scan(&e.ID, &e.TournamentID, &e.MatchID, &e.Type, &e.Status, &e.Detail, &e.RunID, &e.CreatedAt); err != nil {
			return nil, decodeError(op, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, decodeError(op, err)
	}
	return entries, nil
}
