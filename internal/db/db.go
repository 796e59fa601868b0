package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"

	"peopleops/internal/domain"
)

// FoldCollation compares text by Unicode case folding. Name and email
// lookups use it so SQL agrees with domain.Fold beyond ASCII.
const FoldCollation = "FOLD"

func init() {
	sqlite.MustRegisterCollationUtf8(FoldCollation, func(left, right string) int {
		return strings.Compare(domain.Fold(left), domain.Fold(right))
	})
}

const (
	stateDir           = ".peopleops"
	defaultFile        = "peopleops.db"
	defaultBusyTimeout = 5 * time.Second
)

// Config locates the database. An empty Workspace means the current directory.
type Config struct {
	Workspace   string
	BusyTimeout time.Duration
}

// EnsureWorkspace creates the state directory under workspace and returns it.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(orDot(workspace), stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return dir, nil
}

// Path returns the database file for a workspace.
func Path(workspace string) string {
	return filepath.Join(orDot(workspace), stateDir, defaultFile)
}

// Open opens the workspace database in WAL mode with foreign keys enforced.
// Transactions take the write lock at BEGIN, so a writer that read stale
// state never has to upgrade its lock; contenders wait up to BusyTimeout.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	timeout := cfg.BusyTimeout
	if timeout <= 0 {
		timeout = defaultBusyTimeout
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", timeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	conn, err := sql.Open("sqlite", "file:"+Path(cfg.Workspace)+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", Path(cfg.Workspace), err)
	}
	return conn, nil
}

func orDot(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}
