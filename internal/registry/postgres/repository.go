package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/streamlens/streamlens/internal/registry"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping registry db: %w", err)
	}
	return nil
}

func (r *Repository) CreateWatch(ctx context.Context, in registry.CreateWatchInput) (registry.Watch, error) {
	query := `
INSERT INTO watch (watch_id, statement_name, environment, compute_pool, phase, created_by)
VALUES ($1, $2, $3, $4, 'PENDING', $5)
RETURNING created_at`

	watch := registry.Watch{
		WatchID:       in.WatchID,
		StatementName: in.StatementName,
		Environment:   in.Environment,
		ComputePool:   in.ComputePool,
		Phase:         "PENDING",
		CreatedBy:     in.CreatedBy,
	}
	if err := r.db.QueryRowContext(ctx, query, in.WatchID, in.StatementName, in.Environment, in.ComputePool, in.CreatedBy).Scan(&watch.CreatedAt); err != nil {
		return registry.Watch{}, fmt.Errorf("create watch: %w", err)
	}
	return watch, nil
}

func (r *Repository) CompleteWatch(ctx context.Context, in registry.CompleteWatchInput) error {
	query := `
UPDATE watch
SET phase = $2, row_count = $3, truncated = $4, last_error = $5, completed_at = NOW()
WHERE watch_id = $1`

	result, err := r.db.ExecContext(ctx, query, in.WatchID, in.Phase, in.RowCount, in.Truncated, in.LastError)
	if err != nil {
		return fmt.Errorf("complete watch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete watch rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("complete watch %q: %w", in.WatchID, registry.ErrNotFound)
	}
	return nil
}

func (r *Repository) GetWatch(ctx context.Context, watchID string) (registry.Watch, error) {
	query := `
SELECT watch_id, statement_name, environment, compute_pool, phase, row_count, truncated, last_error, created_by, created_at, completed_at
FROM watch
WHERE watch_id = $1`

	var watch registry.Watch
	if err := r.db.QueryRowContext(ctx, query, watchID).Scan(
		&watch.WatchID,
		&watch.StatementName,
		&watch.Environment,
		&watch.ComputePool,
		&watch.Phase,
		&watch.RowCount,
		&watch.Truncated,
		&watch.LastError,
		&watch.CreatedBy,
		&watch.CreatedAt,
		&watch.CompletedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registry.Watch{}, registry.ErrNotFound
		}
		return registry.Watch{}, fmt.Errorf("get watch: %w", err)
	}
	return watch, nil
}

func (r *Repository) ListRecentWatches(ctx context.Context, limit int) ([]registry.Watch, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT watch_id, statement_name, environment, compute_pool, phase, row_count, truncated, last_error, created_by, created_at, completed_at
FROM watch
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent watches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	watches := make([]registry.Watch, 0)
	for rows.Next() {
		var watch registry.Watch
		if err := rows.Scan(
			&watch.WatchID,
			&watch.StatementName,
			&watch.Environment,
			&watch.ComputePool,
			&watch.Phase,
			&watch.RowCount,
			&watch.Truncated,
			&watch.LastError,
			&watch.CreatedBy,
			&watch.CreatedAt,
			&watch.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan watch row: %w", err)
		}
		watches = append(watches, watch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch rows: %w", err)
	}
	return watches, nil
}

func (r *Repository) DeleteWatchesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
DELETE FROM watch
WHERE completed_at IS NOT NULL AND completed_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete watches before cutoff: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete watches rows affected: %w", err)
	}
	return affected, nil
}

func (r *Repository) RecordExport(ctx context.Context, in registry.RecordExportInput) (registry.Export, error) {
	query := `
INSERT INTO export (watch_id, statement_name, path, format, row_count, file_size_bytes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING export_id, created_at`

	export := registry.Export{
		WatchID:       in.WatchID,
		StatementName: in.StatementName,
		Path:          in.Path,
		Format:        in.Format,
		RowCount:      in.RowCount,
		FileSizeBytes: in.FileSizeBytes,
		CreatedBy:     in.CreatedBy,
	}
	if err := r.db.QueryRowContext(ctx, query, in.WatchID, in.StatementName, in.Path, in.Format, in.RowCount, in.FileSizeBytes, in.CreatedBy).Scan(&export.ExportID, &export.CreatedAt); err != nil {
		return registry.Export{}, fmt.Errorf("record export: %w", err)
	}
	return export, nil
}

func (r *Repository) GetExport(ctx context.Context, exportID int64) (registry.Export, error) {
	query := `
SELECT export_id, watch_id, statement_name, path, format, row_count, file_size_bytes, created_by, created_at
FROM export
WHERE export_id = $1`

	var export registry.Export
	if err := r.db.QueryRowContext(ctx, query, exportID).Scan(
		&export.ExportID,
		&export.WatchID,
		&export.StatementName,
		&export.Path,
		&export.Format,
		&export.RowCount,
		&export.FileSizeBytes,
		&export.CreatedBy,
		&export.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registry.Export{}, registry.ErrNotFound
		}
		return registry.Export{}, fmt.Errorf("get export: %w", err)
	}
	return export, nil
}

func (r *Repository) ListExports(ctx context.Context, statementName string, limit int) ([]registry.Export, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT export_id, watch_id, statement_name, path, format, row_count, file_size_bytes, created_by, created_at
FROM export
WHERE statement_name = $1
ORDER BY created_at DESC
LIMIT $2`, statementName, limit)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	exports := make([]registry.Export, 0)
	for rows.Next() {
		var export registry.Export
		if err := rows.Scan(
			&export.ExportID,
			&export.WatchID,
			&export.StatementName,
			&export.Path,
			&export.Format,
			&export.RowCount,
			&export.FileSizeBytes,
			&export.CreatedBy,
			&export.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		exports = append(exports, export)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export rows: %w", err)
	}
	return exports, nil
}

func (r *Repository) ListStatementsWithExports(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT statement_name
FROM export
ORDER BY statement_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list statements with exports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan statement name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statement names: %w", err)
	}
	return names, nil
}

func (r *Repository) DeleteExport(ctx context.Context, exportID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM export
WHERE export_id = $1`, exportID)
	if err != nil {
		return false, fmt.Errorf("delete export: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete export rows affected: %w", err)
	}
	return affected > 0, nil
}
