package server

import (
	"encoding/json"
	"sort"

	"peopleops/internal/domain"
	"peopleops/internal/engine"
)

// Request payloads

type DecisionRequest struct {
	Action string `json:"action" enum:"approve,reject"`
	Note   string `json:"note"`
}

type CreateTaskRequest struct {
	Title      string `json:"title"`
	OwnerName  string `json:"owner_name,omitempty"`
	OwnerEmail string `json:"owner_email,omitempty"`
	DueLabel   string `json:"due_label,omitempty"`
}

type CreateLeaveRequest struct {
	ManagerName string `json:"manager_name"`
	Type        string `json:"type" example:"Annual"`
	StartDate   string `json:"start_date" example:"2024-02-01"`
	EndDate     string `json:"end_date" example:"2024-02-03"`
	Notes       string `json:"notes,omitempty"`
}

type CreateReimbursementRequest struct {
	Category    string `json:"category" example:"Travel"`
	AmountCents int64  `json:"amount_cents" example:"125000"`
	Currency    string `json:"currency,omitempty" example:"USD"`
	Notes       string `json:"notes,omitempty"`
}

type CreateRequisitionRequest struct {
	Title         string `json:"title"`
	Department    string `json:"department"`
	Headcount     int    `json:"headcount" example:"1"`
	Justification string `json:"justification,omitempty"`
}

type CreateAssignmentRequest struct {
	Title        string            `json:"title"`
	Audience     string            `json:"audience,omitempty" example:"All employees"`
	Department   string            `json:"department,omitempty" example:"All departments"`
	DueDate      string            `json:"due_date,omitempty"`
	Questions    []domain.Question `json:"questions"`
	Participants []string          `json:"participants,omitempty"`
}

type AnswerItem struct {
	Question int      `json:"question" doc:"Zero-based question index"`
	Values   []string `json:"values"`
	Multi    bool     `json:"multi,omitempty" doc:"Answer is a set of values"`
}

type SubmitResponseRequest struct {
	Answers []AnswerItem `json:"answers"`
}

type DevLoginRequest struct {
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	Department string `json:"department,omitempty"`
	Role       string `json:"role,omitempty"`
	Director   bool   `json:"director,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type MeResponse struct {
	Identity domain.Identity `json:"identity"`
	Scope    domain.Scope    `json:"scope"`
}

type QueueResponse struct {
	Items    []domain.ApprovableRequest `json:"items"`
	Sources  []engine.SourceStatus      `json:"sources"`
	Degraded bool                       `json:"degraded"`
}

type CompletedResponse struct {
	Items []domain.CompletedApproval `json:"items"`
}

type AssignmentResponse struct {
	ID           string               `json:"id"`
	Title        string               `json:"title"`
	Audience     string               `json:"audience"`
	Department   string               `json:"department"`
	DueDate      string               `json:"due_date,omitempty"`
	Questions    []domain.Question    `json:"questions"`
	Participants []domain.Participant `json:"participants"`
	Completed    int                  `json:"completed"`
	Total        int                  `json:"total"`
	Passed       bool                 `json:"passed"`
	CreatedBy    string               `json:"created_by,omitempty"`
	CreatedAt    string               `json:"created_at" format:"date-time"`
}

type AssignmentList struct {
	Items []AssignmentResponse `json:"items"`
}

type TrainingResponseBody struct {
	ID            string       `json:"id"`
	AssignmentID  string       `json:"assignment_id"`
	EmployeeName  string       `json:"employee_name"`
	EmployeeEmail string       `json:"employee_email"`
	Answers       []AnswerItem `json:"answers"`
	Score         *int         `json:"score" doc:"Null when no question was gradable"`
	Passed        bool         `json:"passed"`
	SubmittedAt   string       `json:"submitted_at" format:"date-time"`
}

type TrainingResponseList struct {
	Items []TrainingResponseBody `json:"items"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func queueResponse(q engine.PendingQueue) QueueResponse {
	return QueueResponse{Items: q.Items, Sources: q.Sources, Degraded: q.Degraded()}
}

// assignmentResponse hides answer keys unless withKeys is set.
func assignmentResponse(a domain.TrainingAssignment, passed, withKeys bool) AssignmentResponse {
	questions := make([]domain.Question, 0, len(a.Questions))
	for _, q := range a.Questions {
		if !withKeys {
			q.CorrectAnswers = nil
		}
		questions = append(questions, q)
	}
	participants := a.Participants
	if participants == nil {
		participants = []domain.Participant{}
	}
	return AssignmentResponse{
		ID:           a.ID,
		Title:        a.Title,
		Audience:     a.Audience,
		Department:   a.Department,
		DueDate:      a.DueDate,
		Questions:    questions,
		Participants: participants,
		Completed:    a.Completed,
		Total:        a.Total,
		Passed:       passed,
		CreatedBy:    a.CreatedBy,
		CreatedAt:    a.CreatedAt,
	}
}

func answersFromItems(items []AnswerItem) map[int]domain.Answer {
	out := make(map[int]domain.Answer, len(items))
	for _, it := range items {
		out[it.Question] = domain.Answer{Values: it.Values, Multi: it.Multi}
	}
	return out
}

func trainingResponse(r domain.TrainingResponse) TrainingResponseBody {
	idx := make([]int, 0, len(r.Answers))
	for i := range r.Answers {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	answers := make([]AnswerItem, 0, len(idx))
	for _, i := range idx {
		a := r.Answers[i]
		values := a.Values
		if values == nil {
			values = []string{}
		}
		answers = append(answers, AnswerItem{Question: i, Values: values, Multi: a.Multi})
	}
	return TrainingResponseBody{
		ID:            r.ID,
		AssignmentID:  r.AssignmentID,
		EmployeeName:  r.EmployeeName,
		EmployeeEmail: r.EmployeeEmail,
		Answers:       answers,
		Score:         r.Score,
		Passed:        r.Passed,
		SubmittedAt:   r.SubmittedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}
