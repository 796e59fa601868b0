package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"peopleops/internal/domain"
	"peopleops/internal/engine"
	"peopleops/internal/engine/auth"
	"peopleops/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

// New returns an HTTP handler exposing the approvals and training API under
// BasePath (default /v0), with Swagger UI at /docs.
func New(cfg Config) (http.Handler, error) {
	basePath := "/" + strings.Trim(cfg.BasePath, "/")
	if basePath == "/" {
		basePath = "/v0"
	}
	installErrorEnvelope()

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("PeopleOps API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	v0 := huma.NewGroup(api, basePath)

	for _, register := range []func(huma.API, engine.Engine){
		registerMe,
		registerApprovals,
		registerNotifications,
		registerTraining,
		registerIntake,
		registerEvents,
	} {
		register(v0, cfg.Engine)
	}
	registerHealth(v0)
	if cfg.Auth.DevLogin {
		registerDevAuth(v0, cfg.Auth)
	}
	mountSpec(router, api, basePath, cfg.Auth.DevLogin)
	return router, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current identity and resolved scope",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		identity, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{Identity: identity, Scope: e.Resolve(identity)}}, nil
	})
}

func registerApprovals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-pending",
		Method:      http.MethodGet,
		Path:        "/approvals",
		Summary:     "Pending requests visible to the caller",
		Description: "Merges tasks, leave requests, reimbursements and requisitions. A source that fails to load is reported in sources and the others are still returned.",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body QueueResponse `json:"body"`
	}, error) {
		identity, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q := e.ListPending(ctx, e.Resolve(identity), identity)
		return &struct {
			Body QueueResponse `json:"body"`
		}{Body: queueResponse(q)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide",
		Method:      http.MethodPost,
		Path:        "/approvals/{kind}/{id}/decision",
		Summary:     "Approve or reject a pending request",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Kind string          `path:"kind" enum:"task,leave,reimbursement,requisition"`
		ID   string          `path:"id"`
		Body DecisionRequest `json:"body"`
	}) (*struct {
		Body domain.CompletedApproval `json:"body"`
	}, error) {
		identity, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, err := domain.ParseKind(input.Kind)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"field": "kind"})
		}
		action, err := domain.ParseAction(input.Body.Action)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"field": "action"})
		}
		approval, err := e.Decide(ctx, engine.DecideOptions{
			Kind:     kind,
			ID:       input.ID,
			Action:   action,
			Note:     input.Body.Note,
			Identity: identity,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CompletedApproval `json:"body"`
		}{Body: approval}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-completed",
		Method:      http.MethodGet,
		Path:        "/approvals/completed",
		Summary:     "Decision audit log visible to the caller, newest first",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body CompletedResponse `json:"body"`
	}, error) {
		identity, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListCompleted(ctx, identity, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompletedResponse `json:"body"`
		}{Body: CompletedResponse{Items: items}}, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Notification digest for the caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.Digest `json:"body"`
	}, error) {
		identity, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body engine.Digest `json:"body"`
		}{Body: e.Compose(ctx, identity, e.Resolve(identity))}, nil
	})
}

func registerTraining(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-assignments",
		Method:      http.MethodGet,
		Path:        "/training/assignments",
		Summary:     "Assignments the caller is eligible for",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AssignmentList `json:"body"`
	}, error) {
		identity, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		eligible, err := e.ListEligible(ctx, identity)
		if err != nil {
			return nil, handleError(err)
		}
		withKeys := e.Resolve(identity).Ops
		resp := AssignmentList{Items: make([]AssignmentResponse, 0, len(eligible))}
		for _, a := range eligible {
			resp.Items = append(resp.Items, assignmentResponse(a.TrainingAssignment, a.Passed, withKeys))
		}
		return &struct {
			Body AssignmentList `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-assignment",
		Method:        http.MethodPost,
		Path:          "/training/assignments",
		Summary:       "Publish a training assignment (ops only)",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAssignmentRequest `json:"body"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		identity, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAssignment(ctx, identity, engine.AssignmentCreateOptions{
			Title:        input.Body.Title,
			Audience:     input.Body.Audience,
			Department:   input.Body.Department,
			DueDate:      input.Body.DueDate,
			Questions:    input.Body.Questions,
			Participants: input.Body.Participants,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(a, false, true)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "submit-response",
		Method:        http.MethodPost,
		Path:          "/training/assignments/{id}/responses",
		Summary:       "Submit answers for grading",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body SubmitResponseRequest `json:"body"`
	}) (*struct {
		Body TrainingResponseBody `json:"body"`
	}, error) {
		identity, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		resp, err := e.Submit(ctx, identity, input.ID, answersFromItems(input.Body.Answers))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TrainingResponseBody `json:"body"`
		}{Body: trainingResponse(resp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-responses",
		Method:      http.MethodGet,
		Path:        "/training/assignments/{id}/responses",
		Summary:     "Responses to an assignment; ops see everyone's",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TrainingResponseList `json:"body"`
	}, error) {
		identity, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListResponses(ctx, identity, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := TrainingResponseList{Items: make([]TrainingResponseBody, 0, len(items))}
		for _, r := range items {
			resp.Items = append(resp.Items, trainingResponse(r))
		}
		return &struct {
			Body TrainingResponseList `json:"body"`
		}{Body: resp}, nil
	})
}

func registerIntake(api huma.API, e engine.Engine) {
	intakeErrors := []int{http.StatusBadRequest, http.StatusUnauthorized}

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Assign a task",
		DefaultStatus: http.StatusCreated,
		Errors:        intakeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		identity, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, identity, engine.TaskInput{
			Title:      input.Body.Title,
			OwnerName:  input.Body.OwnerName,
			OwnerEmail: input.Body.OwnerEmail,
			DueLabel:   input.Body.DueLabel,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-leave",
		Method:        http.MethodPost,
		Path:          "/leave-requests",
		Summary:       "File a leave request",
		DefaultStatus: http.StatusCreated,
		Errors:        intakeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateLeaveRequest `json:"body"`
	}) (*struct {
		Body domain.LeaveRequest `json:"body"`
	}, error) {
		identity, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, err := e.CreateLeave(ctx, identity, engine.LeaveInput{
			ManagerName: input.Body.ManagerName,
			Type:        input.Body.Type,
			StartDate:   input.Body.StartDate,
			EndDate:     input.Body.EndDate,
			Notes:       input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LeaveRequest `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-reimbursement",
		Method:        http.MethodPost,
		Path:          "/reimbursements",
		Summary:       "File an expense claim",
		DefaultStatus: http.StatusCreated,
		Errors:        intakeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateReimbursementRequest `json:"body"`
	}) (*struct {
		Body domain.Reimbursement `json:"body"`
	}, error) {
		identity, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateReimbursement(ctx, identity, engine.ReimbursementInput{
			Category:    input.Body.Category,
			AmountCents: input.Body.AmountCents,
			Currency:    input.Body.Currency,
			Notes:       input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Reimbursement `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-requisition",
		Method:        http.MethodPost,
		Path:          "/requisitions",
		Summary:       "Open a hiring requisition",
		DefaultStatus: http.StatusCreated,
		Errors:        intakeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateRequisitionRequest `json:"body"`
	}) (*struct {
		Body domain.Requisition `json:"body"`
	}, error) {
		identity, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := e.CreateRequisition(ctx, identity, engine.RequisitionInput{
			Title:         input.Body.Title,
			Department:    input.Body.Department,
			Headcount:     input.Body.Headcount,
			Justification: input.Body.Justification,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Requisition `json:"body"`
		}{Body: q}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events (ops only)",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		identity, authErr := identityFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.Require(e.Resolve(identity).Ops, "ops"); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.Events(ctx, repo.EventFilter{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Email) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "email is required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, domain.Identity{
			Name:       input.Body.Name,
			Email:      input.Body.Email,
			Department: input.Body.Department,
			Role:       input.Body.Role,
			Director:   input.Body.Director,
			Locale:     input.Body.Locale,
		}, 0)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		authCfg.logger().Warn("dev login token minted", "email", input.Body.Email)
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
