package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peopleops/internal/config"
	"peopleops/internal/db"
)

func TestLoadServeEnvDefaults(t *testing.T) {
	t.Setenv("PEOPLEOPS_JWT_SECRET", "s3cret")
	cfg, err := LoadServeEnv()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr)
	assert.Equal(t, "/v0", cfg.BasePath)
	assert.False(t, cfg.DevLogin)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadServeEnvOverrides(t *testing.T) {
	t.Setenv("PEOPLEOPS_JWT_SECRET", "s3cret")
	t.Setenv("PEOPLEOPS_ADDR", ":9090")
	t.Setenv("PEOPLEOPS_DEV_LOGIN", "true")
	t.Setenv("PEOPLEOPS_LOG_FORMAT", "json")
	cfg, err := LoadServeEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.True(t, cfg.DevLogin)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadServeEnvRequiresSecret(t *testing.T) {
	t.Setenv("PEOPLEOPS_JWT_SECRET", " ")
	_, err := LoadServeEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PEOPLEOPS_JWT_SECRET")
}

func TestLoadServeEnvRejectsBadBool(t *testing.T) {
	t.Setenv("PEOPLEOPS_JWT_SECRET", "s3cret")
	t.Setenv("PEOPLEOPS_DEV_LOGIN", "maybe")
	_, err := LoadServeEnv()
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&buf, "warn", "json")
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger(&buf, "loud", "text")
	require.Error(t, err)
	_, err = NewLogger(&buf, "info", "xml")
	require.Error(t, err)
}

func TestOpenUsesWorkspaceConfig(t *testing.T) {
	ws := t.TempDir()
	yml := "claims:\n  cfo: [Carol@Example.com]\nnotifications:\n  limit: 4\n"
	require.NoError(t, os.WriteFile(config.Path(ws), []byte(yml), 0o644))

	e, closeFn, err := Open(ws, nil)
	require.NoError(t, err)
	defer closeFn()

	assert.Equal(t, 4, e.Config.Notifications.Limit)
	assert.Equal(t, []string{"carol@example.com"}, e.Config.Claims.CFO)
	_, err = os.Stat(db.Path(ws))
	require.NoError(t, err)
	id, err := e.Repo.LatestEventID(context.Background())
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestOpenWithoutConfigUsesDefaults(t *testing.T) {
	ws := filepath.Join(t.TempDir(), "nested")
	e, closeFn, err := Open(ws, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, config.DefaultPassingScore, e.Config.Training.PassingScore)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(ws), []byte("training:\n  passing_score: 150\n"), 0o644))
	_, _, err := Open(ws, nil)
	require.Error(t, err)
}
