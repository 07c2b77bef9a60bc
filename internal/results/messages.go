package results

import (
	"encoding/json"
	"fmt"

	"github.com/streamlens/streamlens/internal/gateway"
)

// The message protocol is the sole contract between the engine and UI-layer
// callers. Types and body shapes form a small closed set and stay backward
// compatible; the engine and its callers evolve independently.
type MessageType string

const (
	MessageGetResults      MessageType = "results.get"
	MessageGetResultsCount MessageType = "results.count"
	MessageGetSchema       MessageType = "results.schema"
	MessageGetState        MessageType = "statement.state"
	MessageStopStatement   MessageType = "statement.stop"
)

type Message struct {
	Type MessageType     `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

type GetResultsRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

type GetResultsResponse struct {
	Results []NormalizedRow `json:"results"`
}

type GetResultsCountResponse struct {
	Total int `json:"total"`
}

type GetSchemaResponse struct {
	Columns []gateway.ColumnDef `json:"columns"`
}

type StatementStateResponse struct {
	Phase      gateway.StatementPhase `json:"phase"`
	Detail     string                 `json:"detail,omitempty"`
	Truncated  bool                   `json:"truncated"`
	PollActive bool                   `json:"poll_active"`
	LastError  string                 `json:"last_error,omitempty"`
}

type StopStatementResponse struct {
	Stopped bool `json:"stopped"`
}

// ValidationError rejects caller misuse of the message protocol. It is the
// only error HandleMessage returns for well-formed-but-invalid requests, so
// callers can tell misuse apart from "no data yet".
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid message: %s", e.Reason)
	}
	return fmt.Sprintf("invalid message field %q: %s", e.Field, e.Reason)
}

func decodeBody(body json.RawMessage, out any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}
