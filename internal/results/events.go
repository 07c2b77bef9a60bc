package results

import "github.com/streamlens/streamlens/internal/gateway"

type EventReason string

const (
	ReasonRowsAppended    EventReason = "rows_appended"
	ReasonPhaseChanged    EventReason = "phase_changed"
	ReasonFetchFailed     EventReason = "fetch_failed"
	ReasonBufferTruncated EventReason = "buffer_truncated"
)

// Event describes one state change worth re-rendering. The engine does not
// know how the sink consumes it; a UI layer typically coalesces events into
// a render cycle.
type Event struct {
	Reason EventReason
	Phase  gateway.StatementPhase
	Rows   int
	Err    error
}

// Notifier receives engine events. A nil notifier is valid and means no one
// is listening.
type Notifier func(Event)
