package registry

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("registry: not found")

// Repository persists watch-session history and exported snapshot records.
// The engine itself never touches the registry; the API layer records
// sessions around it and the janitor prunes it.
type Repository interface {
	HealthCheck(ctx context.Context) error
	CreateWatch(ctx context.Context, in CreateWatchInput) (Watch, error)
	CompleteWatch(ctx context.Context, in CompleteWatchInput) error
	GetWatch(ctx context.Context, watchID string) (Watch, error)
	ListRecentWatches(ctx context.Context, limit int) ([]Watch, error)
	DeleteWatchesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	RecordExport(ctx context.Context, in RecordExportInput) (Export, error)
	GetExport(ctx context.Context, exportID int64) (Export, error)
	ListExports(ctx context.Context, statementName string, limit int) ([]Export, error)
	ListStatementsWithExports(ctx context.Context) ([]string, error)
	DeleteExport(ctx context.Context, exportID int64) (bool, error)
}

// Watch is one recorded watch session over a statement's results.
type Watch struct {
	WatchID       string
	StatementName string
	Environment   string
	ComputePool   string
	Phase         string
	RowCount      int64
	Truncated     bool
	LastError     string
	CreatedBy     string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// Export is one snapshot of buffered results written to the object store.
type Export struct {
	ExportID      int64
	WatchID       string
	StatementName string
	Path          string
	Format        string
	RowCount      int64
	FileSizeBytes int64
	CreatedBy     string
	CreatedAt     time.Time
}

type CreateWatchInput struct {
	WatchID       string
	StatementName string
	Environment   string
	ComputePool   string
	CreatedBy     string
}

type CompleteWatchInput struct {
	WatchID   string
	Phase     string
	RowCount  int64
	Truncated bool
	LastError string
}

type RecordExportInput struct {
	WatchID       string
	StatementName string
	Path          string
	Format        string
	RowCount      int64
	FileSizeBytes int64
	CreatedBy     string
}
