package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"peopleops/internal/domain"
)

// ErrAlreadyDecided is returned when an audit record for the source exists.
var ErrAlreadyDecided = errors.New("request already decided")

// InsertCompletedApprovalTx appends an audit record. The (kind, id) pair is
// unique, so a duplicate decision fails with ErrAlreadyDecided.
func (r Repo) InsertCompletedApprovalTx(ctx context.Context, tx *sql.Tx, a domain.CompletedApproval) error {
	if a.ID == "" || a.SourceID == "" || a.SourceKind == "" {
		return errors.New("approval id, source_kind and source_id required")
	}
	if strings.TrimSpace(a.Note) == "" {
		return errors.New("approval note required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO completed_approvals(id,source_kind,source_id,title,submitted_by,summary,status,note,decided_by,decided_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, string(a.SourceKind), a.SourceID, a.Title, a.SubmittedBy, a.Summary, a.Status, a.Note, a.DecidedBy, a.DecidedAt)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return ErrAlreadyDecided
	}
	return err
}

const approvalColumns = `id,source_kind,source_id,title,submitted_by,summary,status,note,decided_by,decided_at`

func scanApproval(s interface{ Scan(...any) error }) (domain.CompletedApproval, error) {
	var a domain.CompletedApproval
	var kind string
	err := s.Scan(&a.ID, &kind, &a.SourceID, &a.Title, &a.SubmittedBy, &a.Summary, &a.Status, &a.Note, &a.DecidedBy, &a.DecidedAt)
	a.SourceKind = domain.Kind(kind)
	return a, err
}

// ListCompletedApprovals returns audit records newest first, optionally
// restricted to one source.
func (r Repo) ListCompletedApprovals(ctx context.Context, limit int, kind domain.Kind, sourceID string) ([]domain.CompletedApproval, error) {
	clauses := []string{"1=1"}
	var args []any
	if kind != "" {
		clauses = append(clauses, "source_kind=?")
		args = append(args, string(kind))
	}
	if sourceID != "" {
		clauses = append(clauses, "source_id=?")
		args = append(args, sourceID)
	}
	query := `SELECT ` + approvalColumns + ` FROM completed_approvals WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY decided_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CompletedApproval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
