package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"peopleops/internal/config"
	"peopleops/internal/domain"
	"peopleops/internal/engine/auth"
	"peopleops/internal/events"
	"peopleops/internal/i18n"
	"peopleops/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Scopes auth.Resolver
	Labels *i18n.Catalog
	Log    *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	labels, err := i18n.New(cfg.Locale)
	if err != nil {
		// embedded locales only fail on a broken build; labels fall back to ids
		slog.Default().Error("load locales", "error", err)
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Scopes: auth.NewResolver(cfg),
		Labels: labels,
		Log:    slog.Default(),
		Now:    time.Now,
	}
}

// ValidationError reports rejected input; nothing was written.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// ErrAlreadyPassed rejects a training submission after a passing one.
var ErrAlreadyPassed = errors.New("training already passed")

// Resolve returns the scope of identity under the configured claims.
func (e Engine) Resolve(identity domain.Identity) domain.Scope {
	return e.Scopes.Resolve(identity)
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339Nano)
}

// appendEvent stamps events with the engine clock.
func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload events.Payload) error {
	w := e.Events
	w.Now = e.now
	_, err := w.Append(ctx, tx, events.Record{
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		Actor:      actorID,
		Payload:    payload,
	})
	return err
}

func (e Engine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e Engine) config() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

func newID() string {
	return uuid.NewString()
}

func notFound(kind domain.Kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, repo.ErrNotFound)
}
