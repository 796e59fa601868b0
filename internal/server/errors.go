package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"peopleops/internal/engine"
	"peopleops/internal/engine/auth"
	"peopleops/internal/repo"
)

// ApiError is the envelope every failing endpoint returns:
// {"error":{"code":...,"message":...,"details":{...}}}.
type ApiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"validation failed: note is required"`
	Details map[string]any `json:"details,omitempty" example:"{\"field\":\"note\"}"`
}

func (e *ApiError) GetStatus() int { return e.status }
func (e *ApiError) Error() string  { return e.Body.Message }

var statusCodes = map[int]string{
	http.StatusBadRequest:          "validation_failed",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusConflict:            "conflict",
	http.StatusInternalServerError: "internal_error",
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = statusCodes[status]
	}
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &ApiError{status: status, Body: apiErrorBody{Code: code, Message: message, Details: details}}
}

// installErrorEnvelope routes huma's own errors (schema violations, missing
// bodies) through the envelope. Schema violations report 400 like engine
// validation does.
func installErrorEnvelope() {
	huma.DefaultArrayNullable = false
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			reasons := make([]string, 0, len(errs))
			for _, err := range errs {
				reasons = append(reasons, err.Error())
			}
			details = map[string]any{"errors": reasons}
		}
		return newAPIError(status, "", msg, details)
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return huma.NewErrorWithContext(nil, status, msg, errs...)
	}
}

// handleError maps engine errors onto the envelope. Unknown errors are 500
// without leaking their text.
func handleError(err error) huma.StatusError {
	var ve engine.ValidationError
	var fe auth.ForbiddenError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ve):
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"field": ve.Field})
	case errors.As(err, &fe):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"capability": fe.Capability})
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyPassed):
		return newAPIError(http.StatusConflict, "already_passed", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
