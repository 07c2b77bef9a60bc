package results

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streamlens/streamlens/internal/gateway"
	"github.com/streamlens/streamlens/internal/observability"
)

// Config carries the engine knobs for one manager. The manager applies no
// defaults: the composition root decides, and invalid values fail
// construction.
type Config struct {
	ResultsLimit    int
	PollInterval    time.Duration
	RefreshInterval time.Duration
}

// Manager drives the capture of one statement's results. Run owns two
// independent tickers in a single goroutine: the poll loop fetches, parses
// and appends result pages, and the refresh loop keeps the statement's
// lifecycle phase fresh. The buffer has exactly one writer (the poll loop);
// HandleMessage answers pagination and count reads from the buffer without
// ever touching the network.
type Manager struct {
	handle  gateway.StatementHandle
	fetcher PageFetcher
	loader  ResourceLoader
	tracker *StatusTracker
	buffer  *Buffer
	cfg     Config
	logger  *slog.Logger
	notify  Notifier

	mu         sync.RWMutex
	cursor     string
	drained    bool
	pollHalted bool
	haltReason string
	lastErr    error
}

func NewManager(handle gateway.StatementHandle, fetcher PageFetcher, loader ResourceLoader, cfg Config, logger *slog.Logger, notify Notifier) (*Manager, error) {
	if handle.Name == "" {
		return nil, fmt.Errorf("statement handle is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if loader == nil {
		return nil, fmt.Errorf("resource loader is required")
	}
	if cfg.ResultsLimit <= 0 {
		return nil, fmt.Errorf("results limit must be positive")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if cfg.RefreshInterval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive")
	}

	return &Manager{
		handle:  handle,
		fetcher: fetcher,
		loader:  loader,
		tracker: NewStatusTracker(loader, handle),
		buffer:  NewBuffer(cfg.ResultsLimit),
		cfg:     cfg,
		logger:  logger,
		notify:  notify,
	}, nil
}

// Run loops until the statement reaches a terminal phase or ctx is
// cancelled. Both tickers stop deterministically on return; HandleMessage
// keeps serving the frozen buffer afterwards.
func (m *Manager) Run(ctx context.Context) error {
	// The schema arrives with statement metadata, so it has to be resolved
	// before the first poll tick: rows are parsed exactly once, at append,
	// and a page parsed against an empty schema would stay mislabeled in
	// the buffer forever. A failed first refresh is retried by the ticker.
	if err := m.RefreshOnce(ctx); err != nil {
		if m.logger != nil {
			m.logger.WarnContext(ctx, "initial statement refresh failed",
				slog.String("statement", m.handle.Name),
				slog.Any("error", err),
			)
		}
	} else if m.tracker.Phase().IsTerminal() {
		return nil
	}

	pollTicker := time.NewTicker(m.cfg.PollInterval)
	defer pollTicker.Stop()
	refreshTicker := time.NewTicker(m.cfg.RefreshInterval)
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pollTicker.C:
			if err := m.PollOnce(ctx); err != nil {
				if m.logger != nil {
					m.logger.WarnContext(ctx, "result poll tick failed",
						slog.String("statement", m.handle.Name),
						slog.Any("error", err),
					)
				}
			}
		case <-refreshTicker.C:
			if err := m.RefreshOnce(ctx); err != nil {
				if m.logger != nil {
					m.logger.WarnContext(ctx, "statement refresh failed",
						slog.String("statement", m.handle.Name),
						slog.Any("error", err),
					)
				}
				continue
			}
			if m.tracker.Phase().IsTerminal() {
				if m.logger != nil {
					m.logger.InfoContext(ctx, "statement reached terminal phase",
						slog.String("statement", m.handle.Name),
						slog.String("phase", string(m.tracker.Phase())),
						slog.Int("rows", m.buffer.Count()),
					)
				}
				return nil
			}
		}
	}
}

// PollOnce fetches the next result page and appends its rows. A transient
// failure leaves the cursor untouched and is retried by the next tick; a
// fatal failure halts polling for good while refresh and reads continue.
func (m *Manager) PollOnce(ctx context.Context) error {
	m.mu.RLock()
	cursor := m.cursor
	skip := m.pollHalted || m.drained
	m.mu.RUnlock()
	if skip || m.tracker.Phase().IsTerminal() {
		return nil
	}

	start := time.Now()
	page, err := m.fetcher.GetStatementResults(ctx, m.handle, cursor)
	if err != nil {
		if gateway.IsRetryable(err) {
			observability.IncrementFetchError("transient")
			return fmt.Errorf("fetch result page: %w", err)
		}
		observability.IncrementFetchError("fatal")
		m.mu.Lock()
		m.pollHalted = true
		m.haltReason = "fetch_failed"
		m.lastErr = err
		m.mu.Unlock()
		m.emit(Event{Reason: ReasonFetchFailed, Phase: m.tracker.Phase(), Err: err})
		return fmt.Errorf("fetch result page: %w", err)
	}

	schema := m.tracker.Schema()
	rows := make([]NormalizedRow, 0, len(page.Rows))
	for _, raw := range page.Rows {
		rows = append(rows, ParseRow(raw, schema.Columns))
	}

	appended, dropped := m.buffer.Append(rows)
	observability.ObservePageFetch(appended, dropped, time.Since(start))

	m.mu.Lock()
	m.cursor = page.NextToken
	if page.NextToken == "" {
		m.drained = true
	}
	if dropped > 0 {
		m.pollHalted = true
		m.haltReason = "buffer_full"
	}
	m.mu.Unlock()

	if appended > 0 {
		m.emit(Event{Reason: ReasonRowsAppended, Phase: m.tracker.Phase(), Rows: appended})
	}
	if dropped > 0 {
		m.emit(Event{Reason: ReasonBufferTruncated, Phase: m.tracker.Phase(), Rows: dropped})
	}
	return nil
}

// RefreshOnce re-reads the statement's lifecycle phase through the resource
// loader.
func (m *Manager) RefreshOnce(ctx context.Context) error {
	changed, err := m.tracker.RefreshOnce(ctx)
	if err != nil {
		return err
	}
	observability.IncrementStatusRefresh()
	if changed {
		m.emit(Event{Reason: ReasonPhaseChanged, Phase: m.tracker.Phase()})
	}
	return nil
}

// HandleMessage answers one protocol message. Read messages resolve
// synchronously against the buffer's current snapshot; only statement.stop
// reaches out to the resource loader.
func (m *Manager) HandleMessage(ctx context.Context, msg Message) (any, error) {
	switch msg.Type {
	case MessageGetResults:
		var req GetResultsRequest
		if err := decodeBody(msg.Body, &req); err != nil {
			return nil, err
		}
		if req.Page < 0 {
			return nil, &ValidationError{Field: "page", Reason: "must be non-negative"}
		}
		if req.PageSize <= 0 {
			return nil, &ValidationError{Field: "page_size", Reason: "must be positive"}
		}
		return GetResultsResponse{Results: m.buffer.Slice(req.Page, req.PageSize)}, nil

	case MessageGetResultsCount:
		return GetResultsCountResponse{Total: m.buffer.Count()}, nil

	case MessageGetSchema:
		return GetSchemaResponse{Columns: m.tracker.Schema().Columns}, nil

	case MessageGetState:
		m.mu.RLock()
		halted := m.pollHalted
		lastErr := ""
		if m.lastErr != nil {
			lastErr = m.lastErr.Error()
		}
		m.mu.RUnlock()
		return StatementStateResponse{
			Phase:      m.tracker.Phase(),
			Detail:     m.tracker.Detail(),
			Truncated:  m.buffer.Truncated(),
			PollActive: !halted && !m.tracker.Phase().IsTerminal(),
			LastError:  lastErr,
		}, nil

	case MessageStopStatement:
		if err := m.loader.StopStatement(ctx, m.handle); err != nil {
			return nil, fmt.Errorf("stop statement: %w", err)
		}
		return StopStatementResponse{Stopped: true}, nil

	default:
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown message type %q", msg.Type)}
	}
}

// Handle returns the statement handle the manager was constructed for.
func (m *Manager) Handle() gateway.StatementHandle {
	return m.handle
}

func (m *Manager) Phase() gateway.StatementPhase {
	return m.tracker.Phase()
}

func (m *Manager) Truncated() bool {
	return m.buffer.Truncated()
}

func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Snapshot exposes the buffer's full accumulated rows, for export.
func (m *Manager) Snapshot() []NormalizedRow {
	return m.buffer.Snapshot()
}

func (m *Manager) Count() int {
	return m.buffer.Count()
}

func (m *Manager) emit(event Event) {
	if m.notify != nil {
		m.notify(event)
	}
}
