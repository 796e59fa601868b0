package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"peopleops/internal/domain"
	"peopleops/internal/events"
)

// TaskInput assigns a task to an owner.
type TaskInput struct {
	Title           string `json:"title" yaml:"title"`
	OwnerName       string `json:"owner_name" yaml:"owner_name"`
	OwnerEmail      string `json:"owner_email,omitempty" yaml:"owner_email"`
	AssignedByName  string `json:"assigned_by_name,omitempty" yaml:"assigned_by_name"`
	AssignedByEmail string `json:"assigned_by_email,omitempty" yaml:"assigned_by_email"`
	DueLabel        string `json:"due_label,omitempty" yaml:"due_label"`
}

// LeaveInput files a leave request.
type LeaveInput struct {
	EmployeeName  string `json:"employee_name,omitempty" yaml:"employee_name"`
	EmployeeEmail string `json:"employee_email,omitempty" yaml:"employee_email"`
	ManagerName   string `json:"manager_name" yaml:"manager_name"`
	Type          string `json:"type" yaml:"type"`
	StartDate     string `json:"start_date" yaml:"start_date"`
	EndDate       string `json:"end_date" yaml:"end_date"`
	Notes         string `json:"notes,omitempty" yaml:"notes"`
	Status        string `json:"-" yaml:"status"`
}

// ReimbursementInput files an expense claim.
type ReimbursementInput struct {
	EmployeeName  string `json:"employee_name,omitempty" yaml:"employee_name"`
	EmployeeEmail string `json:"employee_email,omitempty" yaml:"employee_email"`
	Category      string `json:"category" yaml:"category"`
	AmountCents   int64  `json:"amount_cents" yaml:"amount_cents"`
	Currency      string `json:"currency,omitempty" yaml:"currency"`
	Notes         string `json:"notes,omitempty" yaml:"notes"`
	Status        string `json:"-" yaml:"status"`
}

// RequisitionInput opens a hiring requisition.
type RequisitionInput struct {
	Title          string `json:"title" yaml:"title"`
	Department     string `json:"department" yaml:"department"`
	Headcount      int    `json:"headcount" yaml:"headcount"`
	ManagerName    string `json:"manager_name,omitempty" yaml:"manager_name"`
	RequesterEmail string `json:"requester_email,omitempty" yaml:"requester_email"`
	Justification  string `json:"justification,omitempty" yaml:"justification"`
	Status         string `json:"-" yaml:"status"`
}

// Fixture is a batch of records loaded by Import.
type Fixture struct {
	Tasks          []TaskInput               `yaml:"tasks"`
	Leaves         []LeaveInput              `yaml:"leaves"`
	Reimbursements []ReimbursementInput      `yaml:"reimbursements"`
	Requisitions   []RequisitionInput        `yaml:"requisitions"`
	Assignments    []AssignmentCreateOptions `yaml:"assignments"`
}

// ImportSummary counts the records Import created.
type ImportSummary struct {
	Tasks          int `json:"tasks"`
	Leaves         int `json:"leaves"`
	Reimbursements int `json:"reimbursements"`
	Requisitions   int `json:"requisitions"`
	Assignments    int `json:"assignments"`
}

// CreateTask assigns a task. The caller becomes the assigner unless the
// input names one.
func (e Engine) CreateTask(ctx context.Context, identity domain.Identity, in TaskInput) (domain.Task, error) {
	if err := requireIdentity(identity); err != nil {
		return domain.Task{}, err
	}
	if in.AssignedByName == "" && in.AssignedByEmail == "" {
		in.AssignedByName, in.AssignedByEmail = strings.TrimSpace(identity.Name), strings.TrimSpace(identity.Email)
	}
	var t domain.Task
	err := e.intake(ctx, identity, func(tx *sql.Tx) (string, string, error) {
		var err error
		t, err = e.insertTask(ctx, tx, in)
		return string(domain.KindTask), t.ID, err
	})
	return t, err
}

// CreateLeave files a leave request on behalf of the caller.
func (e Engine) CreateLeave(ctx context.Context, identity domain.Identity, in LeaveInput) (domain.LeaveRequest, error) {
	if err := requireIdentity(identity); err != nil {
		return domain.LeaveRequest{}, err
	}
	in.EmployeeName, in.EmployeeEmail = displayName(identity), identity.Email
	in.Status = ""
	var l domain.LeaveRequest
	err := e.intake(ctx, identity, func(tx *sql.Tx) (string, string, error) {
		var err error
		l, err = e.insertLeave(ctx, tx, in)
		return string(domain.KindLeave), l.ID, err
	})
	return l, err
}

// CreateReimbursement files an expense claim on behalf of the caller.
func (e Engine) CreateReimbursement(ctx context.Context, identity domain.Identity, in ReimbursementInput) (domain.Reimbursement, error) {
	if err := requireIdentity(identity); err != nil {
		return domain.Reimbursement{}, err
	}
	in.EmployeeName, in.EmployeeEmail = displayName(identity), identity.Email
	in.Status = ""
	var c domain.Reimbursement
	err := e.intake(ctx, identity, func(tx *sql.Tx) (string, string, error) {
		var err error
		c, err = e.insertReimbursement(ctx, tx, in)
		return string(domain.KindReimbursement), c.ID, err
	})
	return c, err
}

// CreateRequisition opens a requisition with the caller as hiring manager.
func (e Engine) CreateRequisition(ctx context.Context, identity domain.Identity, in RequisitionInput) (domain.Requisition, error) {
	if err := requireIdentity(identity); err != nil {
		return domain.Requisition{}, err
	}
	in.ManagerName, in.RequesterEmail = displayName(identity), identity.Email
	in.Status = ""
	var q domain.Requisition
	err := e.intake(ctx, identity, func(tx *sql.Tx) (string, string, error) {
		var err error
		q, err = e.insertRequisition(ctx, tx, in)
		return string(domain.KindRequisition), q.ID, err
	})
	return q, err
}

// Import loads a fixture in a single transaction. Records keep the status
// the fixture gives them, defaulting to Pending.
func (e Engine) Import(ctx context.Context, f Fixture) (ImportSummary, error) {
	var sum ImportSummary
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return sum, err
	}
	defer tx.Rollback()
	for i, in := range f.Tasks {
		if _, err := e.insertTask(ctx, tx, in); err != nil {
			return ImportSummary{}, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		sum.Tasks++
	}
	for i, in := range f.Leaves {
		if _, err := e.insertLeave(ctx, tx, in); err != nil {
			return ImportSummary{}, fmt.Errorf("leaves[%d]: %w", i, err)
		}
		sum.Leaves++
	}
	for i, in := range f.Reimbursements {
		if _, err := e.insertReimbursement(ctx, tx, in); err != nil {
			return ImportSummary{}, fmt.Errorf("reimbursements[%d]: %w", i, err)
		}
		sum.Reimbursements++
	}
	for i, in := range f.Requisitions {
		if _, err := e.insertRequisition(ctx, tx, in); err != nil {
			return ImportSummary{}, fmt.Errorf("requisitions[%d]: %w", i, err)
		}
		sum.Requisitions++
	}
	for i, opts := range f.Assignments {
		a, err := e.buildAssignment(domain.Identity{}, opts)
		if err != nil {
			return ImportSummary{}, fmt.Errorf("assignments[%d]: %w", i, err)
		}
		if err := e.Repo.InsertAssignmentTx(ctx, tx, a); err != nil {
			return ImportSummary{}, fmt.Errorf("assignments[%d]: %w", i, err)
		}
		sum.Assignments++
	}
	if err := e.appendEvent(ctx, tx, events.TypeFixtureImported, "fixture", "", "", events.Payload{
		"tasks":          sum.Tasks,
		"leaves":         sum.Leaves,
		"reimbursements": sum.Reimbursements,
		"requisitions":   sum.Requisitions,
		"assignments":    sum.Assignments,
	}); err != nil {
		return ImportSummary{}, err
	}
	if err := tx.Commit(); err != nil {
		return ImportSummary{}, err
	}
	e.logger().Info("fixture imported", "tasks", sum.Tasks, "leaves", sum.Leaves,
		"reimbursements", sum.Reimbursements, "requisitions", sum.Requisitions, "assignments", sum.Assignments)
	return sum, nil
}

func (e Engine) intake(ctx context.Context, identity domain.Identity, insert func(tx *sql.Tx) (kind, id string, err error)) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	kind, id, err := insert(tx)
	if err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.TypeRequestSubmitted, kind, id, identity.Key(), nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.logger().Info("request submitted", "kind", kind, "id", id, "by", identity.Key())
	return nil
}

func (e Engine) insertTask(ctx context.Context, tx *sql.Tx, in TaskInput) (domain.Task, error) {
	t := domain.Task{
		ID:              newID(),
		Title:           strings.TrimSpace(in.Title),
		OwnerName:       strings.TrimSpace(in.OwnerName),
		OwnerEmail:      strings.TrimSpace(in.OwnerEmail),
		AssignedByName:  strings.TrimSpace(in.AssignedByName),
		AssignedByEmail: strings.TrimSpace(in.AssignedByEmail),
		DueLabel:        strings.TrimSpace(in.DueLabel),
		CreatedAt:       e.timestamp(),
	}
	if t.Title == "" {
		return t, ValidationError{Field: "title", Message: "is required"}
	}
	if t.OwnerName == "" && t.OwnerEmail == "" {
		return t, ValidationError{Field: "owner", Message: "owner_name or owner_email is required"}
	}
	return t, e.Repo.InsertTask(ctx, tx, t)
}

func (e Engine) insertLeave(ctx context.Context, tx *sql.Tx, in LeaveInput) (domain.LeaveRequest, error) {
	ts := e.timestamp()
	l := domain.LeaveRequest{
		ID:            newID(),
		EmployeeName:  strings.TrimSpace(in.EmployeeName),
		EmployeeEmail: strings.TrimSpace(in.EmployeeEmail),
		ManagerName:   strings.TrimSpace(in.ManagerName),
		Type:          strings.TrimSpace(in.Type),
		StartDate:     strings.TrimSpace(in.StartDate),
		EndDate:       strings.TrimSpace(in.EndDate),
		Status:        defaultString(strings.TrimSpace(in.Status), domain.StatusPending),
		Notes:         in.Notes,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	switch {
	case l.EmployeeName == "":
		return l, ValidationError{Field: "employee_name", Message: "is required"}
	case l.ManagerName == "":
		return l, ValidationError{Field: "manager_name", Message: "is required"}
	case l.Type == "":
		return l, ValidationError{Field: "type", Message: "is required"}
	case l.StartDate == "" || l.EndDate == "":
		return l, ValidationError{Field: "dates", Message: "start_date and end_date are required"}
	case l.EndDate < l.StartDate:
		return l, ValidationError{Field: "end_date", Message: "must not precede start_date"}
	}
	return l, e.Repo.InsertLeave(ctx, tx, l)
}

func (e Engine) insertReimbursement(ctx context.Context, tx *sql.Tx, in ReimbursementInput) (domain.Reimbursement, error) {
	ts := e.timestamp()
	c := domain.Reimbursement{
		ID:            newID(),
		EmployeeName:  strings.TrimSpace(in.EmployeeName),
		EmployeeEmail: strings.TrimSpace(in.EmployeeEmail),
		Category:      strings.TrimSpace(in.Category),
		AmountCents:   in.AmountCents,
		Currency:      strings.ToUpper(defaultString(strings.TrimSpace(in.Currency), "USD")),
		Status:        defaultString(strings.TrimSpace(in.Status), domain.StatusPending),
		Notes:         in.Notes,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	switch {
	case c.EmployeeName == "":
		return c, ValidationError{Field: "employee_name", Message: "is required"}
	case c.Category == "":
		return c, ValidationError{Field: "category", Message: "is required"}
	case c.AmountCents <= 0:
		return c, ValidationError{Field: "amount_cents", Message: "must be positive"}
	}
	return c, e.Repo.InsertReimbursement(ctx, tx, c)
}

func (e Engine) insertRequisition(ctx context.Context, tx *sql.Tx, in RequisitionInput) (domain.Requisition, error) {
	ts := e.timestamp()
	q := domain.Requisition{
		ID:             newID(),
		Title:          strings.TrimSpace(in.Title),
		Department:     strings.TrimSpace(in.Department),
		Headcount:      in.Headcount,
		ManagerName:    strings.TrimSpace(in.ManagerName),
		RequesterEmail: strings.TrimSpace(in.RequesterEmail),
		Status:         defaultString(strings.TrimSpace(in.Status), domain.StatusPending),
		Justification:  in.Justification,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	switch {
	case q.Title == "":
		return q, ValidationError{Field: "title", Message: "is required"}
	case q.Department == "":
		return q, ValidationError{Field: "department", Message: "is required"}
	case q.Headcount < 1:
		return q, ValidationError{Field: "headcount", Message: "must be at least 1"}
	}
	return q, e.Repo.InsertRequisition(ctx, tx, q)
}

func displayName(identity domain.Identity) string {
	return defaultString(strings.TrimSpace(identity.Name), identity.Key())
}

func requireIdentity(identity domain.Identity) error {
	if identity.Key() == "" {
		return ValidationError{Field: "identity", Message: "name or email is required"}
	}
	return nil
}
