package gateway

import "time"

// StatementHandle identifies one statement on the remote SQL gateway. It is
// immutable for the lifetime of a watch session.
type StatementHandle struct {
	Name        string
	Environment string
	ComputePool string
}

type StatementPhase string

const (
	PhasePending   StatementPhase = "PENDING"
	PhaseRunning   StatementPhase = "RUNNING"
	PhaseCompleted StatementPhase = "COMPLETED"
	PhaseFailed    StatementPhase = "FAILED"
	PhaseStopped   StatementPhase = "STOPPED"
	PhaseStopping  StatementPhase = "STOPPING"
)

// IsTerminal reports whether no further result data will arrive for a
// statement in this phase.
func (p StatementPhase) IsTerminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseStopped:
		return true
	default:
		return false
	}
}

type ColumnDef struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type ResultSchema struct {
	Columns []ColumnDef `json:"columns"`
}

type StatementDetail struct {
	Name         string
	Phase        StatementPhase
	StatusDetail string
	Schema       ResultSchema
	CreatedAt    time.Time
}

// RawRow is one change-log entry as the gateway serializes it: an operation
// kind (0 insert, 1 update-before, 2 update-after, 3 delete) and positional
// column values.
type RawRow struct {
	Op  int   `json:"op"`
	Row []any `json:"row"`
}

// ResultPage is one results response. NextToken is the opaque continuation
// cursor; an empty token means the gateway has no further pages for this
// statement.
type ResultPage struct {
	Rows      []RawRow
	NextToken string
	CreatedAt time.Time
}

type statementResponse struct {
	Name   string `json:"name"`
	Status struct {
		Phase  string `json:"phase"`
		Detail string `json:"detail"`
		Traits struct {
			Schema ResultSchema `json:"schema"`
		} `json:"traits"`
	} `json:"status"`
	Metadata struct {
		CreatedAt time.Time `json:"created_at"`
	} `json:"metadata"`
}

type resultsResponse struct {
	Metadata struct {
		CreatedAt time.Time `json:"created_at"`
		Next      string    `json:"next"`
	} `json:"metadata"`
	Results struct {
		Data []RawRow `json:"data"`
	} `json:"results"`
}
