package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"peopleops/internal/domain"
)

func (r Repo) InsertAssignmentTx(ctx context.Context, tx *sql.Tx, a domain.TrainingAssignment) error {
	if a.ID == "" || strings.TrimSpace(a.Title) == "" {
		return errors.New("assignment id and title required")
	}
	questions, err := json.Marshal(a.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	if a.CreatedAt == "" {
		a.CreatedAt = stamp()
	}
	q := r.q(tx)
	if _, err := q.ExecContext(ctx, `INSERT INTO training_assignments(id,title,audience,department,due_date,questions_json,created_by,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.Title, a.Audience, a.Department, a.DueDate, string(questions), a.CreatedBy, a.CreatedAt); err != nil {
		return err
	}
	for _, p := range a.Participants {
		if err := r.UpsertParticipantTx(ctx, tx, a.ID, p.Name, p.Status); err != nil {
			return err
		}
	}
	return nil
}

// UpsertParticipantTx records a participant; Completed is never downgraded.
func (r Repo) UpsertParticipantTx(ctx context.Context, tx *sql.Tx, assignmentID, name, status string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("participant name required")
	}
	if status == "" {
		status = domain.ParticipantPending
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO training_participants(assignment_id,name,status) VALUES (?,?,?)
ON CONFLICT(assignment_id,name) DO UPDATE SET status=CASE WHEN training_participants.status=? THEN training_participants.status ELSE excluded.status END`,
		assignmentID, name, status, domain.ParticipantCompleted)
	return err
}

const assignmentColumns = `id,title,audience,department,due_date,questions_json,created_by,created_at`

func scanAssignment(s interface{ Scan(...any) error }) (domain.TrainingAssignment, error) {
	var a domain.TrainingAssignment
	var questions string
	if err := s.Scan(&a.ID, &a.Title, &a.Audience, &a.Department, &a.DueDate, &questions, &a.CreatedBy, &a.CreatedAt); err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(questions), &a.Questions); err != nil {
		return a, fmt.Errorf("assignment %s questions: %w", a.ID, err)
	}
	return a, nil
}

func (r Repo) GetAssignment(ctx context.Context, tx *sql.Tx, id string) (domain.TrainingAssignment, error) {
	a, err := scanAssignment(r.q(tx).QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM training_assignments WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if err := r.loadParticipants(ctx, tx, &a); err != nil {
		return a, err
	}
	return a, nil
}

// ListAssignments returns every assignment with participants and counters.
func (r Repo) ListAssignments(ctx context.Context) ([]domain.TrainingAssignment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+assignmentColumns+` FROM training_assignments ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	var res []domain.TrainingAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range res {
		if err := r.loadParticipants(ctx, nil, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) loadParticipants(ctx context.Context, tx *sql.Tx, a *domain.TrainingAssignment) error {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT name,status FROM training_participants WHERE assignment_id=? ORDER BY name ASC`, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	a.Participants = []domain.Participant{}
	a.Completed, a.Total = 0, 0
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.Name, &p.Status); err != nil {
			return err
		}
		a.Participants = append(a.Participants, p)
		a.Total++
		if p.Status == domain.ParticipantCompleted {
			a.Completed++
		}
	}
	return rows.Err()
}

// HasPassed reports whether employee already holds a passed response.
func (r Repo) HasPassed(ctx context.Context, tx *sql.Tx, assignmentID, employeeKey string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT 1 FROM training_responses WHERE assignment_id=? AND employee_email=? COLLATE FOLD AND passed=1 LIMIT 1`,
		assignmentID, employeeKey).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// PassedAssignmentIDs returns the set of assignments employee has passed.
func (r Repo) PassedAssignmentIDs(ctx context.Context, employeeKey string) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT assignment_id FROM training_responses WHERE employee_email=? COLLATE FOLD AND passed=1`, employeeKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res[id] = true
	}
	return res, rows.Err()
}

func (r Repo) InsertResponseTx(ctx context.Context, tx *sql.Tx, resp domain.TrainingResponse) error {
	if resp.ID == "" || resp.AssignmentID == "" || resp.EmployeeEmail == "" {
		return errors.New("response id, assignment_id and employee required")
	}
	answers, err := json.Marshal(resp.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	var score any
	if resp.Score != nil {
		score = *resp.Score
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO training_responses(id,assignment_id,employee_name,employee_email,answers_json,score,passed,submitted_at) VALUES (?,?,?,?,?,?,?,?)`,
		resp.ID, resp.AssignmentID, resp.EmployeeName, resp.EmployeeEmail, string(answers), score, boolToInt(resp.Passed), resp.SubmittedAt)
	return err
}

// ListResponses returns responses for an assignment, optionally for one
// employee, oldest first.
func (r Repo) ListResponses(ctx context.Context, assignmentID, employeeKey string) ([]domain.TrainingResponse, error) {
	query := `SELECT id,assignment_id,employee_name,employee_email,answers_json,score,passed,submitted_at FROM training_responses WHERE assignment_id=?`
	args := []any{assignmentID}
	if employeeKey != "" {
		query += ` AND employee_email=? COLLATE FOLD`
		args = append(args, employeeKey)
	}
	query += ` ORDER BY submitted_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TrainingResponse
	for rows.Next() {
		var resp domain.TrainingResponse
		var answers string
		var score sql.NullInt64
		var passed int
		if err := rows.Scan(&resp.ID, &resp.AssignmentID, &resp.EmployeeName, &resp.EmployeeEmail, &answers, &score, &passed, &resp.SubmittedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &resp.Answers); err != nil {
			return nil, fmt.Errorf("response %s answers: %w", resp.ID, err)
		}
		if score.Valid {
			s := int(score.Int64)
			resp.Score = &s
		}
		resp.Passed = passed == 1
		res = append(res, resp)
	}
	return res, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
