package domain

const (
	AllDepartments = "All departments"
	AllEmployees   = "All employees"

	ParticipantPending   = "Pending"
	ParticipantCompleted = "Completed"

	QuestionMultipleChoice = "Multiple choice"
	QuestionShortAnswer    = "Short answer"
	QuestionSingleChoice   = "Single choice"
	QuestionTrueFalse      = "True/False"
)

type Question struct {
	Text    string   `json:"text" yaml:"text"`
	Type    string   `json:"type" yaml:"type"`
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
	// CorrectAnswers is nil for ungraded questions; an empty, non-nil set is
	// still gradable.
	CorrectAnswers *[]string `json:"correct_answers,omitempty" yaml:"correct_answers,omitempty"`
}

// Gradable reports whether the question carries an answer key.
func (q Question) Gradable() bool {
	return q.CorrectAnswers != nil
}

type Participant struct {
	Name   string `json:"name" yaml:"name"`
	Status string `json:"status" yaml:"status" enum:"Pending,Completed"`
}

type TrainingAssignment struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Audience     string        `json:"audience"`
	Department   string        `json:"department"`
	DueDate      string        `json:"due_date,omitempty"`
	Questions    []Question    `json:"questions"`
	Participants []Participant `json:"participants"`
	Completed    int           `json:"completed"`
	Total        int           `json:"total"`
	CreatedBy    string        `json:"created_by,omitempty"`
	CreatedAt    string        `json:"created_at" format:"date-time"`
}

// Answer is a submitted answer: a single value or a set of values.
type Answer struct {
	Values []string `json:"values"`
	Multi  bool     `json:"multi"`
}

// Single returns the answer as one string; sets never collapse to a value.
func (a Answer) Single() (string, bool) {
	if a.Multi || len(a.Values) != 1 {
		return "", false
	}
	return a.Values[0], true
}

type TrainingResponse struct {
	ID            string         `json:"id"`
	AssignmentID  string         `json:"assignment_id"`
	EmployeeName  string         `json:"employee_name"`
	EmployeeEmail string         `json:"employee_email"`
	Answers       map[int]Answer `json:"answers"`
	Score         *int           `json:"score"`
	Passed        bool           `json:"passed"`
	SubmittedAt   string         `json:"submitted_at" format:"date-time"`
}

// NotificationItem is one entry of the per-identity digest.
type NotificationItem struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Source string `json:"source"`
	Label  string `json:"label"`
	Detail string `json:"detail"`
}
