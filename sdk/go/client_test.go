package peopleopssdk

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peopleops/internal/config"
	"peopleops/internal/db"
	"peopleops/internal/domain"
	"peopleops/internal/engine"
	"peopleops/internal/migrate"
	"peopleops/internal/server"
)

const secret = "sdk-secret"

func startServer(t *testing.T) (string, engine.Engine) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	cfg, err := config.FromYAML([]byte("claims:\n  ops: [olive@example.com]\n"))
	require.NoError(t, err)
	e := engine.New(conn, cfg)
	handler, err := server.New(server.Config{Engine: e, Auth: server.AuthConfig{JWTSecret: secret}})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		conn.Close()
	})
	return "http://" + ln.Addr().String(), e
}

func clientFor(t *testing.T, base string, id domain.Identity) *Client {
	t.Helper()
	token, err := server.SignToken(secret, id, time.Hour)
	require.NoError(t, err)
	return New(base, token)
}

func TestClientApprovalRoundTrip(t *testing.T) {
	base, e := startServer(t)
	ctx := context.Background()
	manager := domain.Identity{Name: "Alice Nguyen", Email: "alice@example.com"}
	employee := domain.Identity{Name: "Bob Tran", Email: "bob@example.com"}
	leave, err := e.CreateLeave(ctx, employee, engine.LeaveInput{ManagerName: manager.Name, Type: "Annual", StartDate: "2024-02-01", EndDate: "2024-02-02"})
	require.NoError(t, err)

	c := clientFor(t, base, manager)
	q, err := c.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, q.Items, 1)
	assert.Equal(t, leave.ID, q.Items[0].ID)
	assert.Equal(t, "leave", q.Items[0].Kind)

	approval, err := c.Decide(ctx, "leave", leave.ID, "approve", "have fun")
	require.NoError(t, err)
	assert.Equal(t, "Approved", approval.Status)

	_, err = c.Decide(ctx, "leave", leave.ID, "approve", "again")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	done, err := c.Completed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, done, 1)

	digest, err := c.Notifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, digest.Items)
}

func TestClientTrainingAndEvents(t *testing.T) {
	base, e := startServer(t)
	ctx := context.Background()
	ops := domain.Identity{Name: "Olive Vu", Email: "olive@example.com"}
	key := []string{"True"}
	a, err := e.CreateAssignment(ctx, ops, engine.AssignmentCreateOptions{
		Title:     "Intro",
		Questions: []domain.Question{{Text: "Ready?", Type: domain.QuestionTrueFalse, CorrectAnswers: &key}},
	})
	require.NoError(t, err)

	employee := clientFor(t, base, domain.Identity{Name: "Bob Tran", Email: "bob@example.com"})
	list, err := employee.Assignments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	resp, err := employee.Submit(ctx, a.ID, []Answer{{Question: 0, Values: []string{"True"}}})
	require.NoError(t, err)
	assert.True(t, resp.Passed)
	require.NotNil(t, resp.Score)
	assert.Equal(t, 100, *resp.Score)

	_, err = employee.Submit(ctx, a.ID, []Answer{{Question: 0, Values: []string{"True"}}})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	events, err := clientFor(t, base, ops).Events(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "training.response.submitted", events[0].Type)
	assert.Equal(t, "training.assignment.created", events[1].Type)
}
