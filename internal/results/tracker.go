package results

import (
	"context"
	"fmt"
	"sync"

	"github.com/streamlens/streamlens/internal/gateway"
)

// ResourceLoader is the external collaborator that serves statement metadata
// and statement-level operations. Retry and caching policy for metadata live
// behind this interface, not in the engine.
type ResourceLoader interface {
	RefreshStatement(ctx context.Context, handle gateway.StatementHandle) (gateway.StatementDetail, error)
	StopStatement(ctx context.Context, handle gateway.StatementHandle) error
}

// StatusTracker holds the statement's observed lifecycle phase and result
// schema. Phase transitions are one-way toward a terminal phase: once
// terminal, later refreshes cannot move the phase again.
type StatusTracker struct {
	loader ResourceLoader
	handle gateway.StatementHandle

	mu     sync.RWMutex
	phase  gateway.StatementPhase
	detail string
	schema gateway.ResultSchema
}

func NewStatusTracker(loader ResourceLoader, handle gateway.StatementHandle) *StatusTracker {
	return &StatusTracker{
		loader: loader,
		handle: handle,
		phase:  gateway.PhasePending,
	}
}

// RefreshOnce re-reads statement metadata and reports whether the phase
// changed.
func (t *StatusTracker) RefreshOnce(ctx context.Context) (bool, error) {
	detail, err := t.loader.RefreshStatement(ctx, t.handle)
	if err != nil {
		return false, fmt.Errorf("refresh statement status: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(detail.Schema.Columns) > 0 {
		t.schema = detail.Schema
	}
	t.detail = detail.StatusDetail

	if t.phase.IsTerminal() || detail.Phase == "" || detail.Phase == t.phase {
		return false, nil
	}
	t.phase = detail.Phase
	return true, nil
}

func (t *StatusTracker) Phase() gateway.StatementPhase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.phase
}

func (t *StatusTracker) Detail() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.detail
}

func (t *StatusTracker) Schema() gateway.ResultSchema {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.schema
}
