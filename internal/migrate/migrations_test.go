package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peopleops/internal/db"
)

func TestStepsOrdered(t *testing.T) {
	steps, err := Steps()
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	for i, s := range steps {
		assert.Equal(t, i+1, s.Version, s.Name)
		assert.NotEmpty(t, s.SQL)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(conn))
	v, err := Version(conn)
	require.NoError(t, err)
	steps, err := Steps()
	require.NoError(t, err)
	assert.Equal(t, steps[len(steps)-1].Version, v)

	require.NoError(t, Migrate(conn))
	var applied int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, len(steps), applied)

	for _, table := range []string{"tasks", "leave_requests", "reimbursements", "requisitions", "completed_approvals", "training_assignments", "training_responses", "events"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}
