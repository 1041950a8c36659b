package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TxRunner runs fn inside one transaction. fn receives the executor to pass to
// repository methods that accept one.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(exec SQLExecutor) error) error
}

type postgresTxRunner struct {
	db *sql.DB
}

func NewPostgresTxRunner(db *sql.DB) TxRunner {
	return &postgresTxRunner{db: db}
}

func (r *postgresTxRunner) RunInTx(ctx context.Context, fn func(exec SQLExecutor) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return decodeError("begin tx", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return decodeError("commit tx", err)
	}
	return nil
}

func checkAffectedRows(op string, result sql.Result, kind ErrorKind) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return decodeError(op, fmt.Errorf("check affected rows: %w", err))
	}
	if rowsAffected == 0 {
		return newStoreError(kind, op, nil)
	}
	return nil
}
