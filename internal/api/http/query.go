package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sergimayol/sqlite-virtual-url/internal/engine"
	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
)

// Executor runs one SQL statement against the host database.
type Executor interface {
	Execute(ctx context.Context, query string) (*engine.Result, error)
}

// QueryRequest represents a query request.
type QueryRequest struct {
	SQL string `json:"sql"`
}

// QueryResponse represents the query response.
type QueryResponse struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Stats     Stats    `json:"stats"`
	RequestID string   `json:"request_id"`
}

// Stats contains execution statistics.
type Stats struct {
	RowsReturned    int   `json:"rows_returned"`
	RowsAffected    int64 `json:"rows_affected"`
	ExecutionTimeMs int64 `json:"execution_time_ms"`
}

// QueryHandler handles POST /v1/query requests.
type QueryHandler struct {
	executor Executor
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(exec Executor) *QueryHandler {
	return &QueryHandler{executor: exec}
}

// ServeHTTP handles the query HTTP request.
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", requestID)
		return
	}

	if strings.TrimSpace(req.SQL) == "" {
		writeError(w, http.StatusBadRequest, "sql is required", "", requestID)
		return
	}

	result, err := h.executor.Execute(r.Context(), req.SQL)
	if err != nil {
		writeError(w, statusFor(err), fmt.Sprintf("query execution failed: %v", err), vterrors.GetCode(err), requestID)
		return
	}

	resp := QueryResponse{
		Columns: result.Columns,
		Rows:    result.Rows,
		Stats: Stats{
			RowsReturned:    len(result.Rows),
			RowsAffected:    result.RowsAffected,
			ExecutionTimeMs: result.Elapsed.Milliseconds(),
		},
		RequestID: requestID,
	}

	// Ensure rows is not nil for JSON serialization
	if resp.Rows == nil {
		resp.Rows = [][]any{}
	}
	if resp.Columns == nil {
		resp.Columns = []string{}
	}

	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps an execution error to an HTTP status. Failures of a
// remote collaborator are reported as a bad gateway.
func statusFor(err error) int {
	switch vterrors.GetCategory(err) {
	case vterrors.ErrCategoryFetch:
		return http.StatusBadGateway
	case vterrors.ErrCategoryStorage, vterrors.ErrCategoryInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
