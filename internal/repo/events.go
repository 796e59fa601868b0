package repo

import (
	"context"
	"database/sql"
	"strings"

	"peopleops/internal/domain"
)

// EventFilter narrows a log read. Zero fields match everything; Before pages
// backwards from an event id.
type EventFilter struct {
	Type       string
	EntityKind string
	EntityID   string
	Before     int64
	Limit      int
}

const (
	defaultEventPage = 20
	defaultEventTail = 100
	eventColumns     = `id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json`
)

// Events lists matching events, newest first.
func (r Repo) Events(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	var (
		where strings.Builder
		args  []any
	)
	where.WriteString("WHERE 1=1")
	add := func(clause string, arg any) {
		where.WriteString(" AND " + clause)
		args = append(args, arg)
	}
	if f.Before > 0 {
		add("id<?", f.Before)
	}
	if f.Type != "" {
		add("type=?", f.Type)
	}
	if f.EntityKind != "" {
		add("entity_kind=?", f.EntityKind)
	}
	if f.EntityID != "" {
		add("entity_id=?", f.EntityID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultEventPage
	}
	args = append(args, limit)
	return r.scanEvents(ctx, `SELECT `+eventColumns+` FROM events `+where.String()+` ORDER BY id DESC LIMIT ?`, args...)
}

// EventsAfter returns events with id greater than afterID, oldest first.
func (r Repo) EventsAfter(ctx context.Context, limit int, afterID int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = defaultEventTail
	}
	return r.scanEvents(ctx, `SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, afterID, limit)
}

// LatestEventID is zero for an empty log.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id)
	return id.Int64, err
}

func (r Repo) scanEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Event{}
	for rows.Next() {
		var evt domain.Event
		if err := rows.Scan(&evt.ID, &evt.TS, &evt.Type, &evt.EntityKind, &evt.EntityID, &evt.ActorID, &evt.Payload); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}
