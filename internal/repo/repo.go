// Package repo is the SQLite persistence layer. Every method accepts an
// optional transaction so the engine can compose several writes atomically.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) execer {
	if tx == nil {
		return r.DB
	}
	return tx
}

func stamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// pendingTables are the source tables whose status column drives the queue.
var pendingTables = map[string]bool{
	"leave_requests": true,
	"reimbursements": true,
	"requisitions":   true,
}

// patchPendingStatus settles a pending row. A row already out of the pending
// pool matches nothing, so the loser of a concurrent decision gets ErrNotFound.
func (r Repo) patchPendingStatus(ctx context.Context, tx *sql.Tx, table, id, status string) error {
	if !pendingTables[table] {
		return fmt.Errorf("patch status: unknown table %q", table)
	}
	res, err := r.q(tx).ExecContext(ctx,
		`UPDATE `+table+` SET status=?, updated_at=? WHERE id=? AND instr(lower(status),'pending')>0`,
		status, stamp(), id)
	if err != nil {
		return fmt.Errorf("patch %s %s: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
