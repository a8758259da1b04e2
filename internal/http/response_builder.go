// Package http exposes the ledger operations and the savings planner as a
// JSON API.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"risparmi/internal/core"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	data, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		http.Error(w, `{"error":"internal error","kind":"Internal"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(data, '\n'))
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Details any    `json:"details,omitempty"`
}

type refundDetails struct {
	GoalID     string `json:"goal_id"`
	Attempted  int    `json:"attempted"`
	Succeeded  int    `json:"succeeded"`
	RolledBack bool   `json:"rolled_back"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, kind, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(errorBody{Error: message, Kind: kind})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "BadRequest", message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, "InvalidInput", message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "Internal", message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, "NotFound", message)
}

// statusByKind maps the ledger error taxonomy to HTTP statuses.
var statusByKind = map[string]int{
	"InvalidAmount":                 http.StatusUnprocessableEntity,
	"InvalidInput":                  http.StatusUnprocessableEntity,
	"SelfContribution":              http.StatusUnprocessableEntity,
	"InvalidAccountType":            http.StatusUnprocessableEntity,
	"SavingsAccountChange":          http.StatusUnprocessableEntity,
	"GoalOverfunded":                http.StatusUnprocessableEntity,
	"InsufficientBalance":           http.StatusConflict,
	"GoalAlreadyCompleted":          http.StatusConflict,
	"ConcurrentOperationInProgress": http.StatusConflict,
	"ConsistencyDrift":              http.StatusConflict,
	"AccountNotFound":               http.StatusNotFound,
	"GoalNotFound":                  http.StatusNotFound,
	"ContributionNotFound":          http.StatusNotFound,
	"RecurringNotFound":             http.StatusNotFound,
	"PartialRefundFailure":          http.StatusInternalServerError,
	"CompensationFailed":            http.StatusInternalServerError,
}

// LedgerError translates an error returned by the services. Internal
// errors are logged by the caller and hidden from the client.
func LedgerError(err error) *JSONResponseBuilder {
	kind := core.Kind(err)
	status, ok := statusByKind[kind]
	if !ok {
		return InternalServerError("internal error")
	}

	b := ErrorResponse(status, kind, err.Error())
	var refundErr *core.PartialRefundError
	if errors.As(err, &refundErr) {
		b.Body(errorBody{
			Error: err.Error(),
			Kind:  kind,
			Details: refundDetails{
				GoalID:     refundErr.GoalID,
				Attempted:  refundErr.Attempted,
				Succeeded:  refundErr.Succeeded,
				RolledBack: refundErr.RolledBack,
			},
		})
	}
	if kind == "ConcurrentOperationInProgress" {
		b.Header("Retry-After", "1")
	}
	return b
}
