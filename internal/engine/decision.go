package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"peopleops/internal/domain"
	"peopleops/internal/events"
	"peopleops/internal/repo"
)

// decisionTarget loads and mutates one request kind inside a transaction.
type decisionTarget struct {
	load func(ctx context.Context, r repo.Repo, tx *sql.Tx, id string) (domain.Approvable, error)
	// apply moves the source out of the pending pool. An empty status
	// deletes the source.
	apply func(ctx context.Context, r repo.Repo, tx *sql.Tx, id, status string) error
}

var decisionTargets = map[domain.Kind]decisionTarget{
	domain.KindTask: {
		load: func(ctx context.Context, r repo.Repo, tx *sql.Tx, id string) (domain.Approvable, error) {
			return r.GetTaskTx(ctx, tx, id)
		},
		apply: func(ctx context.Context, r repo.Repo, tx *sql.Tx, id, _ string) error {
			return r.DeleteTaskTx(ctx, tx, id)
		},
	},
	domain.KindLeave: {
		load: func(ctx context.Context, r repo.Repo, tx *sql.Tx, id string) (domain.Approvable, error) {
			return r.GetLeaveTx(ctx, tx, id)
		},
		apply: func(ctx context.Context, r repo.Repo, tx *sql.Tx, id, status string) error {
			return r.PatchLeaveStatusTx(ctx, tx, id, status)
		},
	},
	domain.KindReimbursement: {
		load: func(ctx context.Context, r repo.Repo, tx *sql.Tx, id string) (domain.Approvable, error) {
			return r.GetReimbursementTx(ctx, tx, id)
		},
		apply: func(ctx context.Context, r repo.Repo, tx *sql.Tx, id, status string) error {
			return r.PatchReimbursementStatusTx(ctx, tx, id, status)
		},
	},
	domain.KindRequisition: {
		load: func(ctx context.Context, r repo.Repo, tx *sql.Tx, id string) (domain.Approvable, error) {
			return r.GetRequisitionTx(ctx, tx, id)
		},
		apply: func(ctx context.Context, r repo.Repo, tx *sql.Tx, id, status string) error {
			return r.PatchRequisitionStatusTx(ctx, tx, id, status)
		},
	},
}

// DecideOptions are parameters for recording a decision.
type DecideOptions struct {
	Kind     domain.Kind
	ID       string
	Action   domain.Action
	Note     string
	Identity domain.Identity
}

// Decide records an approve/reject decision. The audit record, the source
// mutation and the event are committed together or not at all. Requests the
// decider cannot see, or that are no longer pending, report ErrNotFound; of
// two racing decisions on one request the first commit wins.
func (e Engine) Decide(ctx context.Context, opts DecideOptions) (domain.CompletedApproval, error) {
	note := strings.TrimSpace(opts.Note)
	if note == "" {
		return domain.CompletedApproval{}, ValidationError{Field: "note", Message: "is required"}
	}
	if opts.Action != domain.ActionApprove && opts.Action != domain.ActionReject {
		return domain.CompletedApproval{}, ValidationError{Field: "action", Message: "must be approve or reject"}
	}
	target, ok := decisionTargets[opts.Kind]
	if !ok {
		return domain.CompletedApproval{}, ValidationError{Field: "kind", Message: fmt.Sprintf("unknown request kind %q", opts.Kind)}
	}
	scope := e.Resolve(opts.Identity)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CompletedApproval{}, err
	}
	defer tx.Rollback()

	rec, err := target.load(ctx, e.Repo, tx, opts.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.CompletedApproval{}, notFound(opts.Kind, opts.ID)
		}
		return domain.CompletedApproval{}, err
	}
	if !rec.VisibleTo(scope) || !rec.Pending() {
		return domain.CompletedApproval{}, notFound(opts.Kind, opts.ID)
	}
	view := rec.View()
	if err := target.apply(ctx, e.Repo, tx, opts.ID, rec.Outcome(opts.Action)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.CompletedApproval{}, notFound(opts.Kind, opts.ID)
		}
		return domain.CompletedApproval{}, fmt.Errorf("update %s %s: %w", opts.Kind, opts.ID, err)
	}
	approval := domain.CompletedApproval{
		ID:          newID(),
		SourceKind:  opts.Kind,
		SourceID:    opts.ID,
		Title:       view.Title,
		SubmittedBy: view.SubmittedBy,
		Summary:     view.Summary,
		Status:      opts.Action.Status(),
		Note:        note,
		DecidedBy:   opts.Identity.Key(),
		DecidedAt:   e.timestamp(),
	}
	if err := e.Repo.InsertCompletedApprovalTx(ctx, tx, approval); err != nil {
		if errors.Is(err, repo.ErrAlreadyDecided) {
			return domain.CompletedApproval{}, notFound(opts.Kind, opts.ID)
		}
		return domain.CompletedApproval{}, fmt.Errorf("record approval: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.TypeApprovalDecided, string(opts.Kind), opts.ID, approval.DecidedBy, events.Payload{
		"approval_id": approval.ID,
		"status":      approval.Status,
		"title":       approval.Title,
	}); err != nil {
		return domain.CompletedApproval{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CompletedApproval{}, err
	}
	e.logger().Info("decision recorded",
		"kind", opts.Kind, "id", opts.ID, "status", approval.Status, "decided_by", approval.DecidedBy)
	return approval, nil
}

// ListCompleted returns the audit records identity may read, newest first.
// Ops read the whole log. Everyone else reads the decisions they made plus
// those whose source request their scope can still see.
func (e Engine) ListCompleted(ctx context.Context, identity domain.Identity, limit int) ([]domain.CompletedApproval, error) {
	scope := e.Resolve(identity)
	if scope.Ops {
		items, err := e.Repo.ListCompletedApprovals(ctx, limit, "", "")
		if items == nil {
			items = []domain.CompletedApproval{}
		}
		return items, err
	}
	all, err := e.Repo.ListCompletedApprovals(ctx, 0, "", "")
	if err != nil {
		return nil, err
	}
	key := identity.Key()
	items := []domain.CompletedApproval{}
	for _, a := range all {
		if limit > 0 && len(items) == limit {
			break
		}
		visible := key != "" && strings.EqualFold(a.DecidedBy, key)
		if !visible {
			if visible, err = e.sourceVisible(ctx, a, scope); err != nil {
				return nil, err
			}
		}
		if visible {
			items = append(items, a)
		}
	}
	return items, nil
}

// sourceVisible reports whether the request behind an audit record is in
// scope. Decided tasks are deleted, so they are visible to their decider only.
func (e Engine) sourceVisible(ctx context.Context, a domain.CompletedApproval, scope domain.Scope) (bool, error) {
	target, ok := decisionTargets[a.SourceKind]
	if !ok {
		return false, nil
	}
	rec, err := target.load(ctx, e.Repo, nil, a.SourceID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s %s: %w", a.SourceKind, a.SourceID, err)
	}
	return rec.VisibleTo(scope), nil
}
