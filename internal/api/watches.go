package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/streamlens/streamlens/internal/auth"
	"github.com/streamlens/streamlens/internal/registry"
	"github.com/streamlens/streamlens/internal/replay"
)

type watchResponse struct {
	WatchID       string     `json:"watch_id"`
	StatementName string     `json:"statement_name"`
	Environment   string     `json:"environment"`
	Phase         string     `json:"phase"`
	RowCount      int64      `json:"row_count"`
	Truncated     bool       `json:"truncated"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func handleListWatches(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Registry == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "REGISTRY_NOT_CONFIGURED", "watch registry is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleResultsReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", err.Error(), false, nil)
		return
	}

	watches, err := deps.Registry.ListRecentWatches(r.Context(), limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "REGISTRY_ERROR", "failed to list watches", true, map[string]any{"details": err.Error()})
		return
	}

	payload := make([]watchResponse, 0, len(watches))
	for _, watch := range watches {
		payload = append(payload, watchResponse{
			WatchID:       watch.WatchID,
			StatementName: watch.StatementName,
			Environment:   watch.Environment,
			Phase:         watch.Phase,
			RowCount:      watch.RowCount,
			Truncated:     watch.Truncated,
			LastError:     watch.LastError,
			CreatedBy:     watch.CreatedBy,
			CreatedAt:     watch.CreatedAt,
			CompletedAt:   watch.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"watches": payload})
}

func handleListExports(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Registry == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "REGISTRY_NOT_CONFIGURED", "watch registry is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleResultsReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	statement := strings.TrimSpace(r.URL.Query().Get("statement"))
	if statement == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "STATEMENT_REQUIRED", "statement query parameter is required", false, nil)
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", err.Error(), false, nil)
		return
	}

	exports, err := deps.Registry.ListExports(r.Context(), statement, limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "REGISTRY_ERROR", "failed to list exports", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": exports})
}

type replayRequest struct {
	ExportID int64  `json:"export_id"`
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type replayResponse struct {
	Columns []string       `json:"columns"`
	Rows    [][]any        `json:"rows"`
	Stats   map[string]any `json:"stats"`
}

func handleReplay(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Registry == nil || deps.ReplayEngine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "REPLAY_NOT_CONFIGURED", "replay dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleResultsReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request replayRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid replay request body", false, map[string]any{"details": err.Error()})
		return
	}
	if request.ExportID <= 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "EXPORT_ID_REQUIRED", "export_id is required", false, nil)
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	record, err := deps.Registry.GetExport(r.Context(), request.ExportID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "EXPORT_NOT_FOUND", "export was not found", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "REGISTRY_ERROR", "failed to resolve export", true, map[string]any{"details": err.Error()})
		return
	}

	result, err := deps.ReplayEngine.Execute(r.Context(), replay.Request{
		SQL:        request.SQL,
		RowLimit:   request.RowLimit,
		ExportPath: record.Path,
		SizeBytes:  record.FileSizeBytes,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "REPLAY_EXECUTION_FAILED", "replay execution failed", false, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, replayResponse{
		Columns: result.Columns,
		Rows:    result.Rows,
		Stats: map[string]any{
			"duration_ms":   result.Duration.Milliseconds(),
			"scanned_bytes": result.ScannedBytes,
		},
	})
}
