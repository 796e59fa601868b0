package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"peopleops/internal/config"
	"peopleops/internal/domain"
	"peopleops/internal/training"
)

const sourceTraining = "training"

// Digest is the capped notification feed of one identity.
type Digest struct {
	Items    []domain.NotificationItem `json:"items"`
	Degraded []string                  `json:"degraded,omitempty"`
}

type digestSource struct {
	name    string
	allowed bool
	fetch   func(ctx context.Context) ([]domain.NotificationItem, error)
}

// Compose builds the notification digest: owned tasks (capped), eligible
// training not yet passed, managed leave requests, then reimbursements for
// CFOs and requisitions for directors. The merged list keeps that order and
// is truncated to the configured limit, never more than ten items.
func (e Engine) Compose(ctx context.Context, identity domain.Identity, scope domain.Scope) Digest {
	cfg := e.config()
	locale := identity.Locale
	if locale == "" {
		locale = cfg.Locale
	}
	sources := []digestSource{
		{
			name:    string(domain.KindTask),
			allowed: scope.Name != "" || scope.Email != "",
			fetch: func(ctx context.Context) ([]domain.NotificationItem, error) {
				tasks, err := e.Repo.ListTasksByOwner(ctx, scope.Email, scope.Name, capped(cfg.Notifications.TaskLimit, config.MaxTaskLimit))
				if err != nil {
					return nil, err
				}
				items := make([]domain.NotificationItem, 0, len(tasks))
				for _, t := range tasks {
					items = append(items, domain.NotificationItem{
						ID:     t.ID,
						Title:  t.Title,
						Source: string(domain.KindTask),
						Detail: e.dueDetail(locale, t.DueLabel),
					})
				}
				return items, nil
			},
		},
		{
			name:    sourceTraining,
			allowed: scope.Employee,
			fetch: func(ctx context.Context) ([]domain.NotificationItem, error) {
				eligible, err := e.ListEligible(ctx, identity)
				if err != nil {
					return nil, err
				}
				var items []domain.NotificationItem
				for _, a := range eligible {
					if a.Passed {
						continue
					}
					items = append(items, domain.NotificationItem{
						ID:     a.ID,
						Title:  a.Title,
						Source: sourceTraining,
						Detail: e.dueDetail(locale, a.DueDate),
					})
				}
				return items, nil
			},
		},
		e.requestDigestSource(domain.KindLeave, scope.Name != "", scope, func(ctx context.Context) ([]domain.Approvable, error) {
			leaves, err := e.Repo.ListLeavesByManager(ctx, scope.Name)
			return approvables(leaves), err
		}),
		e.requestDigestSource(domain.KindReimbursement, scope.CFO, scope, func(ctx context.Context) ([]domain.Approvable, error) {
			claims, err := e.Repo.ListReimbursements(ctx)
			return approvables(claims), err
		}),
		e.requestDigestSource(domain.KindRequisition, scope.Director, scope, func(ctx context.Context) ([]domain.Approvable, error) {
			reqs, err := e.Repo.ListRequisitions(ctx)
			return approvables(reqs), err
		}),
	}

	results := make([][]domain.NotificationItem, len(sources))
	errs := make([]error, len(sources))
	var g errgroup.Group
	for i, s := range sources {
		if !s.allowed {
			continue
		}
		g.Go(func() error {
			results[i], errs[i] = s.fetch(ctx)
			return nil
		})
	}
	_ = g.Wait()

	digest := Digest{Items: []domain.NotificationItem{}}
	for i, s := range sources {
		if errs[i] != nil {
			e.logger().Warn("notification source failed", "source", s.name, "identity", identity.Key(), "error", errs[i])
			digest.Degraded = append(digest.Degraded, s.name)
			continue
		}
		for _, item := range results[i] {
			item.Label = e.Labels.SourceLabel(locale, item.Source)
			digest.Items = append(digest.Items, item)
		}
	}
	if limit := capped(cfg.Notifications.Limit, config.MaxNotificationLimit); len(digest.Items) > limit {
		digest.Items = digest.Items[:limit]
	}
	return digest
}

// capped keeps a configured limit within (0, ceiling].
func capped(limit, ceiling int) int {
	if limit <= 0 {
		return ceiling
	}
	return min(limit, ceiling)
}

func (e Engine) requestDigestSource(kind domain.Kind, allowed bool, scope domain.Scope, list func(ctx context.Context) ([]domain.Approvable, error)) digestSource {
	return digestSource{
		name:    string(kind),
		allowed: allowed,
		fetch: func(ctx context.Context) ([]domain.NotificationItem, error) {
			recs, err := list(ctx)
			if err != nil {
				return nil, err
			}
			var items []domain.NotificationItem
			for _, rec := range recs {
				if !rec.Pending() || !rec.VisibleTo(scope) {
					continue
				}
				v := rec.View()
				items = append(items, domain.NotificationItem{
					ID:     v.ID,
					Title:  fmt.Sprintf("%s: %s", v.SubmittedBy, v.Title),
					Source: string(kind),
					Detail: v.Summary,
				})
			}
			return items, nil
		},
	}
}

func (e Engine) dueDetail(locale, due string) string {
	if due == "" {
		return e.Labels.T(locale, "detail.no_due", nil)
	}
	return e.Labels.T(locale, "detail.due", map[string]any{"Due": due})
}

// EligibleAssignment is an assignment targeted at an identity plus whether
// that identity has already passed it.
type EligibleAssignment struct {
	domain.TrainingAssignment
	Passed bool `json:"passed"`
}

// ListEligible returns the assignments whose department and audience match
// identity.
func (e Engine) ListEligible(ctx context.Context, identity domain.Identity) ([]EligibleAssignment, error) {
	all, err := e.Repo.ListAssignments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	passed, err := e.Repo.PassedAssignmentIDs(ctx, identity.Key())
	if err != nil {
		return nil, fmt.Errorf("list passed assignments: %w", err)
	}
	res := []EligibleAssignment{}
	for _, a := range all {
		if !training.IsEligible(a, identity) {
			continue
		}
		res = append(res, EligibleAssignment{TrainingAssignment: a, Passed: passed[a.ID]})
	}
	return res, nil
}
