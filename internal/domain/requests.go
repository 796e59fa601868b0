package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Kind tags the variant of an approvable request.
type Kind string

const (
	KindTask          Kind = "task"
	KindLeave         Kind = "leave"
	KindReimbursement Kind = "reimbursement"
	KindRequisition   Kind = "requisition"
)

// Kinds lists request kinds in queue order.
var Kinds = []Kind{KindTask, KindLeave, KindReimbursement, KindRequisition}

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("invalid request kind %q", s)
}

// Action is a decision verb.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseAction validates an action string.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionApprove:
		return ActionApprove, nil
	case ActionReject:
		return ActionReject, nil
	}
	return "", fmt.Errorf("invalid action %q", s)
}

// Status returns the terminal status string an action produces.
func (a Action) Status() string {
	if a == ActionApprove {
		return StatusApproved
	}
	return StatusRejected
}

// ApprovableRequest is the unified queue view of a pending request.
type ApprovableRequest struct {
	Kind           Kind   `json:"kind" enum:"task,leave,reimbursement,requisition"`
	ID             string `json:"id"`
	Title          string `json:"title"`
	SubmittedBy    string `json:"submitted_by"`
	SubmitterEmail string `json:"submitter_email,omitempty"`
	Summary        string `json:"summary"`
	Status         string `json:"status"`
}

// Approvable is implemented by every request variant.
type Approvable interface {
	View() ApprovableRequest
	// Pending reports whether the record still awaits a decision.
	Pending() bool
	// VisibleTo reports whether scope may see and decide the record.
	VisibleTo(scope Scope) bool
	// Outcome is the status the source takes after action; empty means the
	// source is deleted instead of patched.
	Outcome(action Action) string
}

type Task struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	OwnerName       string `json:"owner_name"`
	OwnerEmail      string `json:"owner_email"`
	AssignedByName  string `json:"assigned_by_name,omitempty"`
	AssignedByEmail string `json:"assigned_by_email,omitempty"`
	DueLabel        string `json:"due_label,omitempty"`
	CreatedAt       string `json:"created_at" format:"date-time"`
}

func (t Task) View() ApprovableRequest {
	submitter, email := t.AssignedByName, t.AssignedByEmail
	if submitter == "" && email == "" {
		submitter, email = t.OwnerName, t.OwnerEmail
	}
	summary := "No due date"
	if t.DueLabel != "" {
		summary = "Due " + t.DueLabel
	}
	return ApprovableRequest{
		Kind:           KindTask,
		ID:             t.ID,
		Title:          t.Title,
		SubmittedBy:    submitter,
		SubmitterEmail: email,
		Summary:        summary,
		Status:         StatusPending,
	}
}

func (t Task) Pending() bool                { return true }
func (t Task) VisibleTo(s Scope) bool       { return s.Owns(t.OwnerName, t.OwnerEmail) }
func (t Task) Outcome(action Action) string { return "" }

type LeaveRequest struct {
	ID            string `json:"id"`
	EmployeeName  string `json:"employee_name"`
	EmployeeEmail string `json:"employee_email,omitempty"`
	ManagerName   string `json:"manager_name"`
	Type          string `json:"type"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

func (l LeaveRequest) View() ApprovableRequest {
	return ApprovableRequest{
		Kind:           KindLeave,
		ID:             l.ID,
		Title:          fmt.Sprintf("%s leave", l.Type),
		SubmittedBy:    l.EmployeeName,
		SubmitterEmail: l.EmployeeEmail,
		Summary:        fmt.Sprintf("%s to %s", l.StartDate, l.EndDate),
		Status:         l.Status,
	}
}

func (l LeaveRequest) Pending() bool                { return IsPending(l.Status) }
func (l LeaveRequest) VisibleTo(s Scope) bool       { return s.IsManager(l.ManagerName) }
func (l LeaveRequest) Outcome(action Action) string { return action.Status() }

type Reimbursement struct {
	ID            string `json:"id"`
	EmployeeName  string `json:"employee_name"`
	EmployeeEmail string `json:"employee_email,omitempty"`
	Category      string `json:"category"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

// FormattedAmount renders the claim amount with grouping, e.g. "USD 1,250.00".
func (r Reimbursement) FormattedAmount() string {
	return FormatAmount(r.AmountCents, r.Currency)
}

func (r Reimbursement) View() ApprovableRequest {
	return ApprovableRequest{
		Kind:           KindReimbursement,
		ID:             r.ID,
		Title:          fmt.Sprintf("%s reimbursement", r.Category),
		SubmittedBy:    r.EmployeeName,
		SubmitterEmail: r.EmployeeEmail,
		Summary:        r.FormattedAmount(),
		Status:         r.Status,
	}
}

func (r Reimbursement) Pending() bool                { return IsPending(r.Status) }
func (r Reimbursement) VisibleTo(s Scope) bool       { return s.CFO }
func (r Reimbursement) Outcome(action Action) string { return action.Status() }

type Requisition struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Department     string `json:"department"`
	Headcount      int    `json:"headcount"`
	ManagerName    string `json:"manager_name"`
	RequesterEmail string `json:"requester_email,omitempty"`
	Status         string `json:"status"`
	Justification  string `json:"justification,omitempty"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

func (r Requisition) View() ApprovableRequest {
	plural := "s"
	if r.Headcount == 1 {
		plural = ""
	}
	return ApprovableRequest{
		Kind:           KindRequisition,
		ID:             r.ID,
		Title:          r.Title,
		SubmittedBy:    r.ManagerName,
		SubmitterEmail: r.RequesterEmail,
		Summary:        fmt.Sprintf("%s · %d hire%s", r.Department, r.Headcount, plural),
		Status:         r.Status,
	}
}

func (r Requisition) Pending() bool                { return IsPending(r.Status) }
func (r Requisition) VisibleTo(s Scope) bool       { return s.Director }
func (r Requisition) Outcome(action Action) string { return action.Status() }

// CompletedApproval is the immutable audit record of a decision.
type CompletedApproval struct {
	ID          string `json:"id"`
	SourceKind  Kind   `json:"source_kind"`
	SourceID    string `json:"source_id"`
	Title       string `json:"title"`
	SubmittedBy string `json:"submitted_by"`
	Summary     string `json:"summary"`
	Status      string `json:"status"`
	Note        string `json:"note"`
	DecidedBy   string `json:"decided_by"`
	DecidedAt   string `json:"decided_at" format:"date-time"`
}

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders minor units as a grouped decimal prefixed by currency.
func FormatAmount(cents int64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return amountPrinter.Sprintf("%s %s%d.%02d", currency, sign, cents/100, cents%100)
}
