package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"peopleops/internal/domain"
)

// --- tasks ---

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	if t.ID == "" || strings.TrimSpace(t.Title) == "" {
		return errors.New("task id and title required")
	}
	if t.CreatedAt == "" {
		t.CreatedAt = stamp()
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(id,title,owner_name,owner_email,assigned_by_name,assigned_by_email,due_label,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.OwnerName, t.OwnerEmail, t.AssignedByName, t.AssignedByEmail, t.DueLabel, t.CreatedAt)
	return err
}

const taskColumns = `id,title,owner_name,owner_email,assigned_by_name,assigned_by_email,due_label,created_at`

func scanTask(s interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	err := s.Scan(&t.ID, &t.Title, &t.OwnerName, &t.OwnerEmail, &t.AssignedByName, &t.AssignedByEmail, &t.DueLabel, &t.CreatedAt)
	return t, err
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	t, err := scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// ListTasksByOwner returns tasks owned by email or name, oldest first.
// A limit of zero returns everything.
func (r Repo) ListTasksByOwner(ctx context.Context, email, name string, limit int) ([]domain.Task, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" && name == "" {
		return nil, nil
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE (? <> '' AND owner_email=? COLLATE FOLD) OR (? <> '' AND owner_name=? COLLATE FOLD) ORDER BY created_at ASC, id ASC`
	args := []any{email, email, name, name}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- leave requests ---

const leaveColumns = `id,employee_name,employee_email,manager_name,type,start_date,end_date,status,notes,created_at,updated_at`

func scanLeave(s interface{ Scan(...any) error }) (domain.LeaveRequest, error) {
	var l domain.LeaveRequest
	err := s.Scan(&l.ID, &l.EmployeeName, &l.EmployeeEmail, &l.ManagerName, &l.Type, &l.StartDate, &l.EndDate, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (r Repo) InsertLeave(ctx context.Context, tx *sql.Tx, l domain.LeaveRequest) error {
	if l.ID == "" || l.EmployeeName == "" || l.Type == "" {
		return errors.New("leave id, employee_name and type required")
	}
	if l.CreatedAt == "" {
		l.CreatedAt = stamp()
	}
	if l.UpdatedAt == "" {
		l.UpdatedAt = l.CreatedAt
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO leave_requests(`+leaveColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.EmployeeName, l.EmployeeEmail, l.ManagerName, l.Type, l.StartDate, l.EndDate, l.Status, l.Notes, l.CreatedAt, l.UpdatedAt)
	return err
}

func (r Repo) GetLeaveTx(ctx context.Context, tx *sql.Tx, id string) (domain.LeaveRequest, error) {
	l, err := scanLeave(r.q(tx).QueryRowContext(ctx, `SELECT `+leaveColumns+` FROM leave_requests WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	return l, err
}

// ListLeavesByManager returns every leave request naming manager, any status.
func (r Repo) ListLeavesByManager(ctx context.Context, manager string) ([]domain.LeaveRequest, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+leaveColumns+` FROM leave_requests WHERE manager_name=? COLLATE FOLD ORDER BY created_at ASC, id ASC`, strings.TrimSpace(manager))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LeaveRequest
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) PatchLeaveStatusTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	return r.patchPendingStatus(ctx, tx, "leave_requests", id, status)
}

// --- reimbursements ---

const reimbursementColumns = `id,employee_name,employee_email,category,amount_cents,currency,status,notes,created_at,updated_at`

func scanReimbursement(s interface{ Scan(...any) error }) (domain.Reimbursement, error) {
	var c domain.Reimbursement
	err := s.Scan(&c.ID, &c.EmployeeName, &c.EmployeeEmail, &c.Category, &c.AmountCents, &c.Currency, &c.Status, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r Repo) InsertReimbursement(ctx context.Context, tx *sql.Tx, c domain.Reimbursement) error {
	if c.ID == "" || c.EmployeeName == "" || c.Category == "" {
		return errors.New("reimbursement id, employee_name and category required")
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.CreatedAt == "" {
		c.CreatedAt = stamp()
	}
	if c.UpdatedAt == "" {
		c.UpdatedAt = c.CreatedAt
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO reimbursements(`+reimbursementColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.EmployeeName, c.EmployeeEmail, c.Category, c.AmountCents, c.Currency, c.Status, c.Notes, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetReimbursementTx(ctx context.Context, tx *sql.Tx, id string) (domain.Reimbursement, error) {
	c, err := scanReimbursement(r.q(tx).QueryRowContext(ctx, `SELECT `+reimbursementColumns+` FROM reimbursements WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

// ListReimbursements returns all claims, any status.
func (r Repo) ListReimbursements(ctx context.Context) ([]domain.Reimbursement, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+reimbursementColumns+` FROM reimbursements ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Reimbursement
	for rows.Next() {
		c, err := scanReimbursement(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) PatchReimbursementStatusTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	return r.patchPendingStatus(ctx, tx, "reimbursements", id, status)
}

// --- requisitions ---

const requisitionColumns = `id,title,department,headcount,manager_name,requester_email,status,justification,created_at,updated_at`

func scanRequisition(s interface{ Scan(...any) error }) (domain.Requisition, error) {
	var q domain.Requisition
	err := s.Scan(&q.ID, &q.Title, &q.Department, &q.Headcount, &q.ManagerName, &q.RequesterEmail, &q.Status, &q.Justification, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

func (r Repo) InsertRequisition(ctx context.Context, tx *sql.Tx, q domain.Requisition) error {
	if q.ID == "" || q.Title == "" || q.Department == "" {
		return errors.New("requisition id, title and department required")
	}
	if q.Headcount < 1 {
		return errors.New("requisition headcount must be positive")
	}
	if q.CreatedAt == "" {
		q.CreatedAt = stamp()
	}
	if q.UpdatedAt == "" {
		q.UpdatedAt = q.CreatedAt
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO requisitions(`+requisitionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		q.ID, q.Title, q.Department, q.Headcount, q.ManagerName, q.RequesterEmail, q.Status, q.Justification, q.CreatedAt, q.UpdatedAt)
	return err
}

func (r Repo) GetRequisitionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Requisition, error) {
	q, err := scanRequisition(r.q(tx).QueryRowContext(ctx, `SELECT `+requisitionColumns+` FROM requisitions WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return q, ErrNotFound
	}
	return q, err
}

// ListRequisitions returns all requisitions, any status.
func (r Repo) ListRequisitions(ctx context.Context) ([]domain.Requisition, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+requisitionColumns+` FROM requisitions ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Requisition
	for rows.Next() {
		q, err := scanRequisition(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

func (r Repo) PatchRequisitionStatusTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	return r.patchPendingStatus(ctx, tx, "requisitions", id, status)
}
