package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeApprovalDecided   = "approval.decided"
	TypeRequestSubmitted  = "request.submitted"
	TypeAssignmentCreated = "training.assignment.created"
	TypeResponseSubmitted = "training.response.submitted"
	TypeFixtureImported   = "fixture.imported"
)

// SystemActor is recorded when a change has no authenticated caller.
const SystemActor = "system"

type Payload map[string]any

// Record is one entry of the audit log.
type Record struct {
	Type       string
	EntityKind string
	EntityID   string
	Actor      string
	Payload    Payload
}

// Writer appends to the event log inside the caller's transaction, so a
// record is visible exactly when the change it describes commits.
type Writer struct {
	Now func() time.Time
}

// Append stores rec and returns its log id.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) (int64, error) {
	if tx == nil {
		return 0, fmt.Errorf("append %s: transaction required", rec.Type)
	}
	if rec.Type == "" || rec.EntityKind == "" {
		return 0, fmt.Errorf("append: type and entity kind are required")
	}
	body := []byte("{}")
	if len(rec.Payload) > 0 {
		var err error
		if body, err = json.Marshal(rec.Payload); err != nil {
			return 0, fmt.Errorf("append %s: encode payload: %w", rec.Type, err)
		}
	}
	actor := rec.Actor
	if actor == "" {
		actor = SystemActor
	}
	var entityID sql.NullString
	if rec.EntityID != "" {
		entityID = sql.NullString{String: rec.EntityID, Valid: true}
	}
	clock := w.Now
	if clock == nil {
		clock = time.Now
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		clock().UTC().Format(time.RFC3339Nano), rec.Type, rec.EntityKind, entityID, actor, string(body))
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", rec.Type, err)
	}
	return res.LastInsertId()
}
