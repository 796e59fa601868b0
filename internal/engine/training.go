package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"peopleops/internal/domain"
	"peopleops/internal/engine/auth"
	"peopleops/internal/events"
	"peopleops/internal/repo"
	"peopleops/internal/training"
)

var questionTypes = map[string]bool{
	domain.QuestionMultipleChoice: true,
	domain.QuestionShortAnswer:    true,
	domain.QuestionSingleChoice:   true,
	domain.QuestionTrueFalse:      true,
}

// AssignmentCreateOptions are parameters for publishing a training assignment.
type AssignmentCreateOptions struct {
	Title        string            `yaml:"title"`
	Audience     string            `yaml:"audience"`
	Department   string            `yaml:"department"`
	DueDate      string            `yaml:"due_date"`
	Questions    []domain.Question `yaml:"questions"`
	Participants []string          `yaml:"participants"`
}

// CreateAssignment publishes an assignment. Only ops scope may do this.
func (e Engine) CreateAssignment(ctx context.Context, identity domain.Identity, opts AssignmentCreateOptions) (domain.TrainingAssignment, error) {
	if err := auth.Require(e.Resolve(identity).Ops, "ops"); err != nil {
		return domain.TrainingAssignment{}, err
	}
	a, err := e.buildAssignment(identity, opts)
	if err != nil {
		return domain.TrainingAssignment{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TrainingAssignment{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAssignmentTx(ctx, tx, a); err != nil {
		return domain.TrainingAssignment{}, fmt.Errorf("insert assignment: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.TypeAssignmentCreated, "training_assignment", a.ID, a.CreatedBy, events.Payload{
		"title":      a.Title,
		"audience":   a.Audience,
		"department": a.Department,
	}); err != nil {
		return domain.TrainingAssignment{}, err
	}
	created, err := e.Repo.GetAssignment(ctx, tx, a.ID)
	if err != nil {
		return domain.TrainingAssignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TrainingAssignment{}, err
	}
	return created, nil
}

func (e Engine) buildAssignment(creator domain.Identity, opts AssignmentCreateOptions) (domain.TrainingAssignment, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.TrainingAssignment{}, ValidationError{Field: "title", Message: "is required"}
	}
	if len(opts.Questions) == 0 {
		return domain.TrainingAssignment{}, ValidationError{Field: "questions", Message: "at least one question is required"}
	}
	for i, q := range opts.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return domain.TrainingAssignment{}, ValidationError{Field: fmt.Sprintf("questions[%d].text", i), Message: "is required"}
		}
		if !questionTypes[q.Type] {
			return domain.TrainingAssignment{}, ValidationError{Field: fmt.Sprintf("questions[%d].type", i), Message: fmt.Sprintf("unknown type %q", q.Type)}
		}
	}
	a := domain.TrainingAssignment{
		ID:         newID(),
		Title:      title,
		Audience:   defaultString(strings.TrimSpace(opts.Audience), domain.AllEmployees),
		Department: defaultString(strings.TrimSpace(opts.Department), domain.AllDepartments),
		DueDate:    strings.TrimSpace(opts.DueDate),
		Questions:  opts.Questions,
		CreatedBy:  creator.Key(),
		CreatedAt:  e.timestamp(),
	}
	seen := map[string]bool{}
	for _, name := range opts.Participants {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		a.Participants = append(a.Participants, domain.Participant{Name: name, Status: domain.ParticipantPending})
	}
	return a, nil
}

// Submit grades and stores a training response. Assignments the identity is
// not eligible for report ErrNotFound; a prior passing response rejects the
// submission with ErrAlreadyPassed before anything is graded or written.
func (e Engine) Submit(ctx context.Context, identity domain.Identity, assignmentID string, answers map[int]domain.Answer) (domain.TrainingResponse, error) {
	key := identity.Key()
	if key == "" {
		return domain.TrainingResponse{}, ValidationError{Field: "identity", Message: "name or email is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TrainingResponse{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAssignment(ctx, tx, assignmentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.TrainingResponse{}, fmt.Errorf("assignment %s: %w", assignmentID, repo.ErrNotFound)
		}
		return domain.TrainingResponse{}, err
	}
	if !training.IsEligible(a, identity) {
		return domain.TrainingResponse{}, fmt.Errorf("assignment %s: %w", assignmentID, repo.ErrNotFound)
	}
	passed, err := e.Repo.HasPassed(ctx, tx, a.ID, key)
	if err != nil {
		return domain.TrainingResponse{}, err
	}
	if passed {
		e.logger().Info("resubmission rejected", "assignment", a.ID, "employee", key)
		return domain.TrainingResponse{}, ErrAlreadyPassed
	}
	for idx := range answers {
		if idx < 0 || idx >= len(a.Questions) {
			return domain.TrainingResponse{}, ValidationError{Field: "answers", Message: fmt.Sprintf("question index %d out of range", idx)}
		}
	}

	result := training.Grade(a, answers, e.config().Training.PassingScore)
	resp := domain.TrainingResponse{
		ID:            newID(),
		AssignmentID:  a.ID,
		EmployeeName:  strings.TrimSpace(identity.Name),
		EmployeeEmail: key,
		Answers:       answers,
		Passed:        result.Passed,
		SubmittedAt:   e.timestamp(),
	}
	if resp.Answers == nil {
		resp.Answers = map[int]domain.Answer{}
	}
	if result.Graded() {
		score := result.Score
		resp.Score = &score
	}
	if err := e.Repo.InsertResponseTx(ctx, tx, resp); err != nil {
		return domain.TrainingResponse{}, fmt.Errorf("insert response: %w", err)
	}
	// Only a pass changes the roster; failed attempts leave Total alone.
	if resp.Passed {
		participant := resp.EmployeeName
		if participant == "" {
			participant = key
		}
		if err := e.Repo.UpsertParticipantTx(ctx, tx, a.ID, participant, domain.ParticipantCompleted); err != nil {
			return domain.TrainingResponse{}, fmt.Errorf("update participant: %w", err)
		}
	}
	if err := e.appendEvent(ctx, tx, events.TypeResponseSubmitted, "training_assignment", a.ID, key, events.Payload{
		"response_id": resp.ID,
		"score":       resp.Score,
		"passed":      resp.Passed,
	}); err != nil {
		return domain.TrainingResponse{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TrainingResponse{}, err
	}
	e.logger().Info("training response stored", "assignment", a.ID, "employee", key, "score", resp.Score, "passed", resp.Passed)
	return resp, nil
}

// ListResponses returns responses to an assignment. Ops scope sees every
// response; anyone else sees only their own.
func (e Engine) ListResponses(ctx context.Context, identity domain.Identity, assignmentID string) ([]domain.TrainingResponse, error) {
	if _, err := e.Repo.GetAssignment(ctx, nil, assignmentID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("assignment %s: %w", assignmentID, repo.ErrNotFound)
		}
		return nil, err
	}
	employee := identity.Key()
	if e.Resolve(identity).Ops {
		employee = ""
	} else if employee == "" {
		return []domain.TrainingResponse{}, nil
	}
	res, err := e.Repo.ListResponses(ctx, assignmentID, employee)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []domain.TrainingResponse{}
	}
	return res, nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
