package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streamlens/streamlens/internal/observability"
	"github.com/streamlens/streamlens/internal/registry"
	"github.com/streamlens/streamlens/internal/results"
	"github.com/streamlens/streamlens/internal/storage"
)

// Exporter writes a watch session's buffered rows to the object store as one
// parquet file and records it in the registry.
type Exporter struct {
	Store     storage.ObjectStore
	Repo      registry.Repository
	CreatedBy string
	Logger    *slog.Logger
	Clock     func() time.Time
}

type Input struct {
	WatchID       string
	StatementName string
	Environment   string
	Rows          []results.NormalizedRow
}

func (e *Exporter) Export(ctx context.Context, in Input) (registry.Export, error) {
	if e.Store == nil || e.Repo == nil {
		return registry.Export{}, fmt.Errorf("exporter is not configured")
	}
	if len(in.Rows) == 0 {
		return registry.Export{}, fmt.Errorf("watch %q has no rows to export", in.WatchID)
	}

	now := time.Now
	if e.Clock != nil {
		now = e.Clock
	}

	encoded, err := EncodeRowsToParquet(in.Rows)
	if err != nil {
		return registry.Export{}, fmt.Errorf("encode export: %w", err)
	}

	key, err := storage.BuildExportPath(in.Environment, in.StatementName, in.WatchID, now())
	if err != nil {
		return registry.Export{}, fmt.Errorf("build export path: %w", err)
	}

	info, err := e.Store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.ContentTypeParquet)
	if err != nil {
		return registry.Export{}, fmt.Errorf("upload export: %w", err)
	}

	size := info.Size
	if size == 0 {
		size = int64(len(encoded.Data))
	}

	record, err := e.Repo.RecordExport(ctx, registry.RecordExportInput{
		WatchID:       in.WatchID,
		StatementName: in.StatementName,
		Path:          key,
		Format:        "parquet",
		RowCount:      encoded.RowCount,
		FileSizeBytes: size,
		CreatedBy:     e.CreatedBy,
	})
	if err != nil {
		// The object is already uploaded; leave it for the janitor rather
		// than failing the delete path too.
		return registry.Export{}, fmt.Errorf("record export: %w", err)
	}

	observability.ObserveExportedBytes(size)
	if e.Logger != nil {
		e.Logger.InfoContext(ctx, "exported watch results",
			slog.String("watch_id", in.WatchID),
			slog.String("statement", in.StatementName),
			slog.String("path", key),
			slog.Int64("rows", encoded.RowCount),
			slog.Int64("bytes", size),
		)
	}
	return record, nil
}
