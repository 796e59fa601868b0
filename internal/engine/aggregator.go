package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"peopleops/internal/domain"
)

// SourceStatus describes one source's contribution to a merged result.
type SourceStatus struct {
	Kind    domain.Kind `json:"kind"`
	Allowed bool        `json:"allowed"`
	Count   int         `json:"count"`
	Error   string      `json:"error,omitempty"`
}

// PendingQueue is the merged approval queue. Items are ordered tasks, leave
// requests, reimbursements, requisitions; Sources always lists all four.
type PendingQueue struct {
	Items   []domain.ApprovableRequest `json:"items"`
	Sources []SourceStatus             `json:"sources"`
}

// Degraded reports whether any source failed to load.
func (q PendingQueue) Degraded() bool {
	for _, s := range q.Sources {
		if s.Error != "" {
			return true
		}
	}
	return false
}

type sourceFetch struct {
	kind    domain.Kind
	allowed bool
	fetch   func(ctx context.Context) ([]domain.Approvable, error)
}

type sourceResult struct {
	items []domain.Approvable
	err   error
}

// ListPending merges the four pending-request sources visible to scope. A
// failing source contributes nothing and is flagged in Sources; the others
// are still returned.
func (e Engine) ListPending(ctx context.Context, scope domain.Scope, identity domain.Identity) PendingQueue {
	fetches := e.pendingSources(scope)
	results := e.fanOut(ctx, fetches)

	queue := PendingQueue{Items: []domain.ApprovableRequest{}, Sources: make([]SourceStatus, len(fetches))}
	for i, f := range fetches {
		status := SourceStatus{Kind: f.kind, Allowed: f.allowed}
		if err := results[i].err; err != nil {
			status.Error = err.Error()
			e.logger().Warn("pending source failed", "source", f.kind, "identity", identity.Key(), "error", err)
			queue.Sources[i] = status
			continue
		}
		for _, item := range results[i].items {
			if !item.Pending() || !item.VisibleTo(scope) {
				continue
			}
			queue.Items = append(queue.Items, item.View())
			status.Count++
		}
		queue.Sources[i] = status
	}
	return queue
}

func (e Engine) pendingSources(scope domain.Scope) []sourceFetch {
	return []sourceFetch{
		{
			kind:    domain.KindTask,
			allowed: scope.Name != "" || scope.Email != "",
			fetch: func(ctx context.Context) ([]domain.Approvable, error) {
				tasks, err := e.Repo.ListTasksByOwner(ctx, scope.Email, scope.Name, 0)
				return approvables(tasks), err
			},
		},
		{
			kind:    domain.KindLeave,
			allowed: scope.Name != "",
			fetch: func(ctx context.Context) ([]domain.Approvable, error) {
				leaves, err := e.Repo.ListLeavesByManager(ctx, scope.Name)
				return approvables(leaves), err
			},
		},
		{
			kind:    domain.KindReimbursement,
			allowed: scope.CFO,
			fetch: func(ctx context.Context) ([]domain.Approvable, error) {
				claims, err := e.Repo.ListReimbursements(ctx)
				return approvables(claims), err
			},
		},
		{
			kind:    domain.KindRequisition,
			allowed: scope.Director,
			fetch: func(ctx context.Context) ([]domain.Approvable, error) {
				reqs, err := e.Repo.ListRequisitions(ctx)
				return approvables(reqs), err
			},
		},
	}
}

// fanOut runs every allowed fetch concurrently and waits for all of them.
// Errors are kept per source rather than cancelling siblings.
func (e Engine) fanOut(ctx context.Context, fetches []sourceFetch) []sourceResult {
	results := make([]sourceResult, len(fetches))
	var g errgroup.Group
	for i, f := range fetches {
		if !f.allowed {
			continue
		}
		g.Go(func() error {
			items, err := f.fetch(ctx)
			results[i] = sourceResult{items: items, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func approvables[T domain.Approvable](in []T) []domain.Approvable {
	out := make([]domain.Approvable, 0, len(in))
	for _, v := range in {
		out = append(out, v)
	}
	return out
}
