package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/streamlens/streamlens/internal/auth"
	"github.com/streamlens/streamlens/internal/gateway"
	"github.com/streamlens/streamlens/internal/results"
)

type createSessionRequest struct {
	StatementName string `json:"statement_name"`
	Environment   string `json:"environment"`
	ComputePool   string `json:"compute_pool"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleStatementOperator); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request createSessionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid session request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.StatementName) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "STATEMENT_REQUIRED", "statement_name is required", false, nil)
		return
	}

	summary, err := deps.Sessions.Create(r.Context(), CreateSessionInput{
		StatementName: strings.TrimSpace(request.StatementName),
		Environment:   strings.TrimSpace(request.Environment),
		ComputePool:   strings.TrimSpace(request.ComputePool),
		CreatedBy:     subjectFromRequest(r),
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_CREATE_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func handleListSessions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleResultsReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": deps.Sessions.List()})
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleResultsReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	response, err := deps.Sessions.Message(r.Context(), r.PathValue("session"), results.Message{Type: results.MessageGetState})
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func handleSessionSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleResultsReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	response, err := deps.Sessions.Message(r.Context(), r.PathValue("session"), results.Message{Type: results.MessageGetSchema})
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// handleSessionMessage exposes the raw message protocol over HTTP. The body
// is a protocol envelope; the response is the message-specific payload.
func handleSessionMessage(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleResultsReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var msg results.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid message envelope", false, map[string]any{"details": err.Error()})
		return
	}
	if msg.Type == results.MessageStopStatement {
		if err := requireRole(r, auth.RoleStatementOperator); err != nil {
			writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
			return
		}
	}

	response, err := deps.Sessions.Message(r.Context(), r.PathValue("session"), msg)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func handleSessionResults(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleResultsReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	page, err := queryInt(r, "page", 0)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PAGE", err.Error(), false, nil)
		return
	}
	pageSize, err := queryInt(r, "page_size", 100)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PAGE_SIZE", err.Error(), false, nil)
		return
	}

	body, err := json.Marshal(results.GetResultsRequest{Page: page, PageSize: pageSize})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", err.Error(), false, nil)
		return
	}
	response, err := deps.Sessions.Message(r.Context(), r.PathValue("session"), results.Message{
		Type: results.MessageGetResults,
		Body: body,
	})
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func handleSessionResultsCount(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleResultsReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	response, err := deps.Sessions.Message(r.Context(), r.PathValue("session"), results.Message{Type: results.MessageGetResultsCount})
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func handleStopSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleStatementOperator); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	response, err := deps.Sessions.Message(r.Context(), r.PathValue("session"), results.Message{Type: results.MessageStopStatement})
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func handleDeleteSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleStatementOperator); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	if err := deps.Sessions.Delete(r.PathValue("session")); err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func handleExportSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleStatementOperator); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	record, err := deps.Sessions.Export(r.Context(), r.PathValue("session"))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			writeSessionError(w, r, err)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"export_id":       record.ExportID,
		"path":            record.Path,
		"row_count":       record.RowCount,
		"file_size_bytes": record.FileSizeBytes,
	})
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrSessionNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session was not found", false, nil)
		return
	}
	var validationErr *results.ValidationError
	if errors.As(err, &validationErr) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MESSAGE", validationErr.Error(), false, nil)
		return
	}
	if gateway.IsNotFound(err) {
		writeError(r.Context(), w, http.StatusNotFound, "STATEMENT_NOT_FOUND", "statement was not found on the gateway", false, nil)
		return
	}
	writeError(r.Context(), w, http.StatusBadGateway, "GATEWAY_ERROR", err.Error(), gateway.IsRetryable(err), nil)
}

func subjectFromRequest(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.Subject
	}
	return ""
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return value, nil
}
