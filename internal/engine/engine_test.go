package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peopleops/internal/config"
	"peopleops/internal/db"
	"peopleops/internal/domain"
	"peopleops/internal/engine"
	"peopleops/internal/engine/auth"
	"peopleops/internal/migrate"
	"peopleops/internal/repo"
)

var (
	alice = domain.Identity{Name: "Alice Nguyen", Email: "alice@example.com", Department: "Engineering", Role: "Manager"}
	bob   = domain.Identity{Name: "Bob Tran", Email: "bob@example.com", Department: "Engineering", Role: "Engineer"}
	carol = domain.Identity{Name: "Carol Le", Email: "carol@example.com", Department: "Finance", Role: "Manager"}
	dana  = domain.Identity{Name: "Dana Pham", Email: "dana@example.com", Department: "Operations", Role: "Director", Director: true}
	olive = domain.Identity{Name: "Olive Vu", Email: "olive@example.com", Department: "People", Role: "Specialist"}
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err, "open db")
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn), "migrate")

	cfg, err := config.FromYAML([]byte(`
claims:
  cfo: ["Carol@Example.com"]
  ops: ["olive@example.com"]
`))
	require.NoError(t, err)
	eng := engine.New(conn, cfg)
	var mu sync.Mutex
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) pending(t *testing.T, who domain.Identity) engine.PendingQueue {
	t.Helper()
	return env.Engine.ListPending(env.Ctx, env.Engine.Resolve(who), who)
}

func ids(items []domain.ApprovableRequest) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

type seeded struct {
	task          domain.Task
	leave         domain.LeaveRequest
	reimbursement domain.Reimbursement
	requisition   domain.Requisition
}

func seed(t *testing.T, env testEnv) seeded {
	t.Helper()
	var s seeded
	var err error
	s.task, err = env.Engine.CreateTask(env.Ctx, dana, engine.TaskInput{Title: "Review onboarding plan", OwnerName: alice.Name, OwnerEmail: alice.Email, DueLabel: "Friday"})
	require.NoError(t, err)
	s.leave, err = env.Engine.CreateLeave(env.Ctx, bob, engine.LeaveInput{ManagerName: "alice nguyen", Type: "Annual", StartDate: "2024-02-01", EndDate: "2024-02-03"})
	require.NoError(t, err)
	s.reimbursement, err = env.Engine.CreateReimbursement(env.Ctx, bob, engine.ReimbursementInput{Category: "Travel", AmountCents: 125000})
	require.NoError(t, err)
	s.requisition, err = env.Engine.CreateRequisition(env.Ctx, alice, engine.RequisitionInput{Title: "Backend engineer", Department: "Engineering", Headcount: 2})
	require.NoError(t, err)
	return s
}

func TestListPendingVisibility(t *testing.T) {
	env := newTestEnv(t)
	s := seed(t, env)

	q := env.pending(t, alice)
	assert.Equal(t, []string{s.task.ID, s.leave.ID}, ids(q.Items))
	assert.False(t, q.Degraded())
	require.Len(t, q.Sources, 4)
	assert.True(t, q.Sources[0].Allowed)
	assert.False(t, q.Sources[2].Allowed)
	assert.False(t, q.Sources[3].Allowed)

	first := q.Items[0]
	assert.Equal(t, domain.KindTask, first.Kind)
	assert.Equal(t, dana.Name, first.SubmittedBy)
	assert.Equal(t, "Due Friday", first.Summary)

	assert.Equal(t, []string{s.reimbursement.ID}, ids(env.pending(t, carol).Items))
	assert.Equal(t, []string{s.requisition.ID}, ids(env.pending(t, dana).Items))
	assert.Empty(t, env.pending(t, bob).Items)
	assert.Empty(t, env.pending(t, domain.Identity{}).Items)

	reimb := env.pending(t, carol).Items[0]
	assert.Equal(t, "USD 1,250.00", reimb.Summary)
	assert.Equal(t, "Travel reimbursement", reimb.Title)
}

func TestListPendingSkipsDecidedFixtures(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Import(env.Ctx, engine.Fixture{
		Leaves: []engine.LeaveInput{
			{EmployeeName: "Bob Tran", ManagerName: alice.Name, Type: "Sick", StartDate: "2024-01-02", EndDate: "2024-01-02", Status: "Approved"},
			{EmployeeName: "Bob Tran", ManagerName: alice.Name, Type: "Annual", StartDate: "2024-03-01", EndDate: "2024-03-02", Status: "Pending review"},
		},
	})
	require.NoError(t, err)
	q := env.pending(t, alice)
	require.Len(t, q.Items, 1)
	assert.Equal(t, "Annual leave", q.Items[0].Title)
}

func TestDecideRequiresNote(t *testing.T) {
	env := newTestEnv(t)
	s := seed(t, env)

	_, err := env.Engine.Decide(env.Ctx, engine.DecideOptions{Kind: domain.KindLeave, ID: s.leave.ID, Action: domain.ActionApprove, Note: "   ", Identity: alice})
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "note", verr.Field)

	assert.Contains(t, ids(env.pending(t, alice).Items), s.leave.ID)
	done, err := env.Engine.ListCompleted(env.Ctx, olive, 0)
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestDecideRecordsAuditAndRemovesFromQueue(t *testing.T) {
	env := newTestEnv(t)
	s := seed(t, env)

	approval, err := env.Engine.Decide(env.Ctx, engine.DecideOptions{Kind: domain.KindLeave, ID: s.leave.ID, Action: domain.ActionApprove, Note: " enjoy ", Identity: alice})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approval.Status)
	assert.Equal(t, "enjoy", approval.Note)
	assert.Equal(t, "alice@example.com", approval.DecidedBy)
	assert.Equal(t, "Bob Tran", approval.SubmittedBy)
	assert.Equal(t, "2024-02-01 to 2024-02-03", approval.Summary)

	assert.NotContains(t, ids(env.pending(t, alice).Items), s.leave.ID)
	leave, err := env.Engine.Repo.GetLeaveTx(env.Ctx, nil, s.leave.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, leave.Status)

	_, err = env.Engine.Decide(env.Ctx, engine.DecideOptions{Kind: domain.KindLeave, ID: s.leave.ID, Action: domain.ActionReject, Note: "again", Identity: alice})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	done, err := env.Engine.ListCompleted(env.Ctx, olive, 0)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, s.leave.ID, done[0].SourceID)

	evts, err := env.Engine.Repo.Events(env.Ctx, repo.EventFilter{Type: "approval.decided"})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, s.leave.ID, evts[0].EntityID)
}

func TestDecideTaskDeletesSource(t *testing.T) {
	env := newTestEnv(t)
	s := seed(t, env)

	approval, err := env.Engine.Decide(env.Ctx, engine.DecideOptions{Kind: domain.KindTask, ID: s.task.ID, Action: domain.ActionReject, Note: "not mine", Identity: alice})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, approval.Status)

	_, err = env.Engine.Repo.GetTaskTx(env.Ctx, nil, s.task.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.Equal(t, []string{s.leave.ID}, ids(env.pending(t, alice).Items))
}

func TestDecideOutsideScopeIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	s := seed(t, env)

	cases := []struct {
		name string
		kind domain.Kind
		id   string
		who  domain.Identity
	}{
		{"leave of another manager", domain.KindLeave, s.leave.ID, bob},
		{"reimbursement without cfo claim", domain.KindReimbursement, s.reimbursement.ID, alice},
		{"requisition without director flag", domain.KindRequisition, s.requisition.ID, carol},
		{"task owned by someone else", domain.KindTask, s.task.ID, carol},
		{"unknown id", domain.KindLeave, "missing", alice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.Decide(env.Ctx, engine.DecideOptions{Kind: tc.kind, ID: tc.id, Action: domain.ActionApprove, Note: "ok", Identity: tc.who})
			assert.ErrorIs(t, err, repo.ErrNotFound)
		})
	}
	done, err := env.Engine.ListCompleted(env.Ctx, olive, 0)
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestDecideWithClaims(t *testing.T) {
	env := newTestEnv(t)
	s := seed(t, env)

	_, err := env.Engine.Decide(env.Ctx, engine.DecideOptions{Kind: domain.KindReimbursement, ID: s.reimbursement.ID, Action: domain.ActionReject, Note: "missing receipt", Identity: carol})
	require.NoError(t, err)
	_, err = env.Engine.Decide(env.Ctx, engine.DecideOptions{Kind: domain.KindRequisition, ID: s.requisition.ID, Action: domain.ActionApprove, Note: "budgeted", Identity: dana})
	require.NoError(t, err)

	claim, err := env.Engine.Repo.GetReimbursementTx(env.Ctx, nil, s.reimbursement.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, claim.Status)

	done, err := env.Engine.ListCompleted(env.Ctx, olive, 0)
	require.NoError(t, err)
	require.Len(t, done, 2)
	assert.Equal(t, s.requisition.ID, done[0].SourceID, "newest first")
	assert.Equal(t, "Engineering · 2 hires", done[0].Summary)
}

func TestListCompletedIsScoped(t *testing.T) {
	env := newTestEnv(t)
	s := seed(t, env)

	_, err := env.Engine.Decide(env.Ctx, engine.DecideOptions{Kind: domain.KindReimbursement, ID: s.reimbursement.ID, Action: domain.ActionReject, Note: "missing receipt", Identity: carol})
	require.NoError(t, err)
	_, err = env.Engine.Decide(env.Ctx, engine.DecideOptions{Kind: domain.KindRequisition, ID: s.requisition.ID, Action: domain.ActionApprove, Note: "budgeted", Identity: dana})
	require.NoError(t, err)
	_, err = env.Engine.Decide(env.Ctx, engine.DecideOptions{Kind: domain.KindTask, ID: s.task.ID, Action: domain.ActionApprove, Note: "done", Identity: alice})
	require.NoError(t, err)

	sources := func(who domain.Identity) []string {
		done, err := env.Engine.ListCompleted(env.Ctx, who, 0)
		require.NoError(t, err)
		out := []string{}
		for _, a := range done {
			out = append(out, a.SourceID)
		}
		return out
	}
	assert.Equal(t, []string{s.reimbursement.ID}, sources(carol))
	assert.Equal(t, []string{s.requisition.ID}, sources(dana))
	assert.Equal(t, []string{s.task.ID}, sources(alice))
	assert.Empty(t, sources(bob))
	assert.Len(t, sources(olive), 3)

	erin := domain.Identity{Name: "Erin Ho", Email: "erin@example.com", Department: "Sales", Role: "Director", Director: true}
	assert.Equal(t, []string{s.requisition.ID}, sources(erin), "directors read requisition decisions")

	limited, err := env.Engine.ListCompleted(env.Ctx, olive, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDecideRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	s := seed(t, env)
	var verr engine.ValidationError

	_, err := env.Engine.Decide(env.Ctx, engine.DecideOptions{Kind: domain.KindLeave, ID: s.leave.ID, Action: "maybe", Note: "x", Identity: alice})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "action", verr.Field)

	_, err = env.Engine.Decide(env.Ctx, engine.DecideOptions{Kind: "payroll", ID: s.leave.ID, Action: domain.ActionApprove, Note: "x", Identity: alice})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "kind", verr.Field)
}

func TestListPendingPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateLeave(env.Ctx, bob, engine.LeaveInput{ManagerName: carol.Name, Type: "Annual", StartDate: "2024-04-01", EndDate: "2024-04-02"})
	require.NoError(t, err)
	_, err = env.Engine.DB.Exec(`DROP TABLE reimbursements`)
	require.NoError(t, err)

	q := env.pending(t, carol)
	assert.True(t, q.Degraded())
	require.Len(t, q.Items, 1)
	assert.Equal(t, domain.KindLeave, q.Items[0].Kind)
	assert.NotEmpty(t, q.Sources[2].Error)
	assert.Equal(t, 1, q.Sources[1].Count)

	digest := env.Engine.Compose(env.Ctx, carol, env.Engine.Resolve(carol))
	assert.Equal(t, []string{"reimbursement"}, digest.Degraded)
	require.Len(t, digest.Items, 1)
	assert.Equal(t, "leave", digest.Items[0].Source)
	assert.Equal(t, "Bob Tran: Annual leave", digest.Items[0].Title)
}

func TestComposeCapsAndOrders(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 8; i++ {
		_, err := env.Engine.CreateTask(env.Ctx, dana, engine.TaskInput{Title: fmt.Sprintf("task %d", i), OwnerEmail: alice.Email})
		require.NoError(t, err)
	}
	_, err := env.Engine.CreateAssignment(env.Ctx, olive, engine.AssignmentCreateOptions{
		Title:     "Security basics",
		DueDate:   "2024-06-30",
		Questions: []domain.Question{{Text: "Share passwords?", Type: domain.QuestionTrueFalse, CorrectAnswers: keysOf("False")}},
	})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := env.Engine.CreateLeave(env.Ctx, bob, engine.LeaveInput{ManagerName: alice.Name, Type: "Annual", StartDate: "2024-05-01", EndDate: "2024-05-02"})
		require.NoError(t, err)
	}

	digest := env.Engine.Compose(env.Ctx, alice, env.Engine.Resolve(alice))
	require.Len(t, digest.Items, 10)
	assert.Empty(t, digest.Degraded)
	for i := 0; i < 6; i++ {
		assert.Equal(t, "task", digest.Items[i].Source)
		assert.Equal(t, "Task", digest.Items[i].Label)
		assert.Equal(t, "No due date", digest.Items[i].Detail)
	}
	assert.Equal(t, "training", digest.Items[6].Source)
	assert.Equal(t, "Due 2024-06-30", digest.Items[6].Detail)
	for _, item := range digest.Items[7:] {
		assert.Equal(t, "leave", item.Source)
		assert.Equal(t, "Leave request", item.Label)
	}
}

func TestComposeCapsHoldAgainstLargeConfig(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Notifications.Limit = 50
	env.Engine.Config.Notifications.TaskLimit = 40
	for i := 0; i < 30; i++ {
		_, err := env.Engine.CreateTask(env.Ctx, dana, engine.TaskInput{Title: fmt.Sprintf("task %d", i), OwnerEmail: alice.Email})
		require.NoError(t, err)
	}
	for i := 0; i < 8; i++ {
		_, err := env.Engine.CreateLeave(env.Ctx, bob, engine.LeaveInput{ManagerName: alice.Name, Type: "Annual", StartDate: "2024-05-01", EndDate: "2024-05-02"})
		require.NoError(t, err)
	}

	digest := env.Engine.Compose(env.Ctx, alice, env.Engine.Resolve(alice))
	require.Len(t, digest.Items, 10)
	tasks := 0
	for _, item := range digest.Items {
		if item.Source == "task" {
			tasks++
		}
	}
	assert.Equal(t, 6, tasks)

	env.Engine.Config.Notifications.Limit = 3
	assert.Len(t, env.Engine.Compose(env.Ctx, alice, env.Engine.Resolve(alice)).Items, 3)
}

func TestComposeLocalizesLabels(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, dana, engine.TaskInput{Title: "Sign contract", OwnerEmail: bob.Email})
	require.NoError(t, err)
	who := bob
	who.Locale = "vi"
	digest := env.Engine.Compose(env.Ctx, who, env.Engine.Resolve(who))
	require.Len(t, digest.Items, 1)
	assert.NotEqual(t, "Task", digest.Items[0].Label)
	assert.NotEqual(t, "source.task", digest.Items[0].Label)
}

func TestComposeSkipsPassedTraining(t *testing.T) {
	env := newTestEnv(t)
	a := createQuiz(t, env)
	_, err := env.Engine.Submit(env.Ctx, bob, a.ID, map[int]domain.Answer{0: {Values: []string{"False"}}})
	require.NoError(t, err)

	digest := env.Engine.Compose(env.Ctx, bob, env.Engine.Resolve(bob))
	assert.Empty(t, digest.Items)

	eligible, err := env.Engine.ListEligible(env.Ctx, bob)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.True(t, eligible[0].Passed)
}

func keysOf(values ...string) *[]string {
	return &values
}

func createQuiz(t *testing.T, env testEnv) domain.TrainingAssignment {
	t.Helper()
	a, err := env.Engine.CreateAssignment(env.Ctx, olive, engine.AssignmentCreateOptions{
		Title:        "Security basics",
		Department:   "Engineering",
		Questions:    []domain.Question{{Text: "Share passwords?", Type: domain.QuestionTrueFalse, Options: []string{"True", "False"}, CorrectAnswers: keysOf("False")}},
		Participants: []string{bob.Name},
	})
	require.NoError(t, err)
	return a
}

func TestCreateAssignmentRequiresOps(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateAssignment(env.Ctx, alice, engine.AssignmentCreateOptions{
		Title:     "Nope",
		Questions: []domain.Question{{Text: "Q", Type: domain.QuestionShortAnswer}},
	})
	var forbidden auth.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, "ops", forbidden.Capability)

	_, err = env.Engine.CreateAssignment(env.Ctx, olive, engine.AssignmentCreateOptions{
		Title:     "Bad type",
		Questions: []domain.Question{{Text: "Q", Type: "Essay"}},
	})
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "questions[0].type", verr.Field)
}

func TestCreateAssignmentDefaults(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateAssignment(env.Ctx, olive, engine.AssignmentCreateOptions{
		Title:        " Code of conduct ",
		Questions:    []domain.Question{{Text: "Summarize", Type: domain.QuestionShortAnswer}},
		Participants: []string{"Bob Tran", "Bob Tran", " "},
	})
	require.NoError(t, err)
	assert.Equal(t, "Code of conduct", a.Title)
	assert.Equal(t, domain.AllEmployees, a.Audience)
	assert.Equal(t, domain.AllDepartments, a.Department)
	assert.Equal(t, "olive@example.com", a.CreatedBy)
	assert.Equal(t, 1, a.Total)
	assert.Equal(t, 0, a.Completed)
}

func TestSubmitGradesAndCompletesParticipant(t *testing.T) {
	env := newTestEnv(t)
	a := createQuiz(t, env)

	resp, err := env.Engine.Submit(env.Ctx, bob, a.ID, map[int]domain.Answer{0: {Values: []string{"True"}}})
	require.NoError(t, err)
	require.NotNil(t, resp.Score)
	assert.Equal(t, 0, *resp.Score)
	assert.False(t, resp.Passed)

	resp, err = env.Engine.Submit(env.Ctx, bob, a.ID, map[int]domain.Answer{0: {Values: []string{"False"}}})
	require.NoError(t, err)
	require.NotNil(t, resp.Score)
	assert.Equal(t, 100, *resp.Score)
	assert.True(t, resp.Passed)

	stored, err := env.Engine.Repo.GetAssignment(env.Ctx, nil, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Completed)
	assert.Equal(t, []domain.Participant{{Name: bob.Name, Status: domain.ParticipantCompleted}}, stored.Participants)
}

func TestFailedAttemptsLeaveRosterAlone(t *testing.T) {
	env := newTestEnv(t)
	a := createQuiz(t, env)

	for _, who := range []domain.Identity{alice, bob} {
		resp, err := env.Engine.Submit(env.Ctx, who, a.ID, map[int]domain.Answer{0: {Values: []string{"True"}}})
		require.NoError(t, err)
		require.False(t, resp.Passed)
	}
	stored, err := env.Engine.Repo.GetAssignment(env.Ctx, nil, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Total, "a failed attempt by someone never seeded is not a participant")
	assert.Equal(t, 0, stored.Completed)
	assert.Equal(t, []domain.Participant{{Name: bob.Name, Status: domain.ParticipantPending}}, stored.Participants)

	_, err = env.Engine.Submit(env.Ctx, alice, a.ID, map[int]domain.Answer{0: {Values: []string{"False"}}})
	require.NoError(t, err)
	stored, err = env.Engine.Repo.GetAssignment(env.Ctx, nil, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Total)
	assert.Equal(t, 1, stored.Completed)
}

func TestSubmitAfterPassIsRejected(t *testing.T) {
	env := newTestEnv(t)
	a := createQuiz(t, env)
	first, err := env.Engine.Submit(env.Ctx, bob, a.ID, map[int]domain.Answer{0: {Values: []string{"False"}}})
	require.NoError(t, err)
	require.True(t, first.Passed)

	_, err = env.Engine.Submit(env.Ctx, bob, a.ID, map[int]domain.Answer{0: {Values: []string{"True"}}})
	assert.ErrorIs(t, err, engine.ErrAlreadyPassed)

	responses, err := env.Engine.ListResponses(env.Ctx, bob, a.ID)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, first.ID, responses[0].ID)
	assert.Equal(t, 100, *responses[0].Score)

	evts, err := env.Engine.Repo.Events(env.Ctx, repo.EventFilter{Type: "training.response.submitted"})
	require.NoError(t, err)
	assert.Len(t, evts, 1)
}

func TestSubmitUngradableStoresNullScore(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateAssignment(env.Ctx, olive, engine.AssignmentCreateOptions{
		Title:     "Feedback survey",
		Questions: []domain.Question{{Text: "What would you improve?", Type: domain.QuestionShortAnswer}},
	})
	require.NoError(t, err)

	resp, err := env.Engine.Submit(env.Ctx, bob, a.ID, map[int]domain.Answer{0: {Values: []string{"More snacks"}}})
	require.NoError(t, err)
	assert.Nil(t, resp.Score)
	assert.False(t, resp.Passed)

	responses, err := env.Engine.ListResponses(env.Ctx, olive, a.ID)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Nil(t, responses[0].Score)
	assert.Equal(t, "More snacks", responses[0].Answers[0].Values[0])

	// ungraded responses never count as passed, so resubmission is allowed
	_, err = env.Engine.Submit(env.Ctx, bob, a.ID, map[int]domain.Answer{0: {Values: []string{"Nothing"}}})
	require.NoError(t, err)
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	a := createQuiz(t, env)

	_, err := env.Engine.Submit(env.Ctx, carol, a.ID, map[int]domain.Answer{0: {Values: []string{"False"}}})
	assert.ErrorIs(t, err, repo.ErrNotFound, "finance is outside the audience")

	_, err = env.Engine.Submit(env.Ctx, bob, "missing", nil)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.Submit(env.Ctx, bob, a.ID, map[int]domain.Answer{3: {Values: []string{"x"}}})
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = env.Engine.Submit(env.Ctx, domain.Identity{Department: "Engineering"}, a.ID, nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "identity", verr.Field)
}

func TestListResponsesScope(t *testing.T) {
	env := newTestEnv(t)
	a := createQuiz(t, env)
	_, err := env.Engine.Submit(env.Ctx, bob, a.ID, map[int]domain.Answer{0: {Values: []string{"True"}}})
	require.NoError(t, err)
	_, err = env.Engine.Submit(env.Ctx, alice, a.ID, map[int]domain.Answer{0: {Values: []string{"False"}}})
	require.NoError(t, err)

	all, err := env.Engine.ListResponses(env.Ctx, olive, a.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := env.Engine.ListResponses(env.Ctx, bob, a.ID)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "bob@example.com", own[0].EmployeeEmail)

	_, err = env.Engine.ListResponses(env.Ctx, olive, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestImportIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Import(env.Ctx, engine.Fixture{
		Tasks:        []engine.TaskInput{{Title: "ok", OwnerEmail: alice.Email}},
		Requisitions: []engine.RequisitionInput{{Title: "bad", Department: "Eng", Headcount: 0}},
	})
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "headcount", verr.Field)
	assert.Empty(t, env.pending(t, alice).Items)

	sum, err := env.Engine.Import(env.Ctx, engine.Fixture{
		Tasks:          []engine.TaskInput{{Title: "ok", OwnerEmail: alice.Email}},
		Reimbursements: []engine.ReimbursementInput{{EmployeeName: "Bob Tran", Category: "Meals", AmountCents: 4200, Currency: "eur"}},
		Assignments: []engine.AssignmentCreateOptions{{
			Title:     "Intro",
			Questions: []domain.Question{{Text: "Ready?", Type: domain.QuestionTrueFalse, CorrectAnswers: keysOf("True")}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, engine.ImportSummary{Tasks: 1, Reimbursements: 1, Assignments: 1}, sum)
	q := env.pending(t, carol)
	require.Len(t, q.Items, 1)
	assert.Equal(t, "EUR 42.00", q.Items[0].Summary)
}

func TestIntakeEmitsEvents(t *testing.T) {
	env := newTestEnv(t)
	l, err := env.Engine.CreateLeave(env.Ctx, bob, engine.LeaveInput{EmployeeName: "Someone Else", ManagerName: alice.Name, Type: "Annual", StartDate: "2024-02-01", EndDate: "2024-02-02"})
	require.NoError(t, err)
	assert.Equal(t, bob.Name, l.EmployeeName, "submitter comes from identity")
	assert.Equal(t, domain.StatusPending, l.Status)

	evts, err := env.Engine.Repo.Events(env.Ctx, repo.EventFilter{Type: "request.submitted", EntityKind: "leave", EntityID: l.ID})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "bob@example.com", evts[0].ActorID)

	_, err = env.Engine.CreateLeave(env.Ctx, bob, engine.LeaveInput{ManagerName: alice.Name, Type: "Annual", StartDate: "2024-02-05", EndDate: "2024-02-01"})
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end_date", verr.Field)

	_, err = env.Engine.CreateReimbursement(env.Ctx, domain.Identity{}, engine.ReimbursementInput{Category: "Travel", AmountCents: 1})
	require.ErrorAs(t, err, &verr)
}

func TestConcurrentDecideFirstWins(t *testing.T) {
	env := newTestEnv(t)
	const rounds = 20
	for round := range rounds {
		l, err := env.Engine.CreateLeave(env.Ctx, bob, engine.LeaveInput{ManagerName: alice.Name, Type: "Annual", StartDate: "2024-03-01", EndDate: "2024-03-02"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = env.Engine.Decide(env.Ctx, engine.DecideOptions{Kind: domain.KindLeave, ID: l.ID, Action: domain.ActionApprove, Note: "ok", Identity: alice})
			}(i)
		}
		wg.Wait()

		var succeeded, lost int
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, repo.ErrNotFound):
				lost++
			}
		}
		require.Equal(t, 1, succeeded, "round %d: %v", round, errors.Join(errs...))
		require.Equal(t, 1, lost, "round %d: loser must see not found: %v", round, errors.Join(errs...))
	}
	done, err := env.Engine.ListCompleted(env.Ctx, olive, 0)
	require.NoError(t, err)
	assert.Len(t, done, rounds)
}
