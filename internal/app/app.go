package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"

	"peopleops/internal/config"
	"peopleops/internal/db"
	"peopleops/internal/engine"
	"peopleops/internal/migrate"
)

// ServeEnv is the process environment read by the HTTP server.
type ServeEnv struct {
	JWTSecret string `env:"PEOPLEOPS_JWT_SECRET"`
	Addr      string `env:"PEOPLEOPS_ADDR" envDefault:"127.0.0.1:8080"`
	BasePath  string `env:"PEOPLEOPS_BASE_PATH" envDefault:"/v0"`
	DevLogin  bool   `env:"PEOPLEOPS_DEV_LOGIN" envDefault:"false"`
	LogLevel  string `env:"PEOPLEOPS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PEOPLEOPS_LOG_FORMAT" envDefault:"text"`
}

// LoadServeEnv parses the environment and rejects a missing signing secret.
func LoadServeEnv() (ServeEnv, error) {
	cfg, err := env.ParseAs[ServeEnv]()
	if err != nil {
		return ServeEnv{}, fmt.Errorf("parse environment: %w", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return ServeEnv{}, fmt.Errorf("PEOPLEOPS_JWT_SECRET is required for bearer auth")
	}
	return cfg, nil
}

// NewLogger builds the process logger. Format is "text" or "json".
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// Open prepares the workspace: database, schema and peopleops.yml (defaults
// when the file is absent). The returned close func releases the database.
func Open(workspace string, log *slog.Logger) (engine.Engine, func() error, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return engine.Engine{}, nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	if log != nil {
		e.Log = log
	}
	return e, conn.Close, nil
}
