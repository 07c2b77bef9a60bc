package export

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/streamlens/streamlens/internal/registry"
	"github.com/streamlens/streamlens/internal/results"
	"github.com/streamlens/streamlens/internal/storage"
)

type fakeStore struct {
	lastKey         string
	lastSize        int64
	lastContentType string
}

func (f *fakeStore) Put(_ context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	f.lastKey = key
	f.lastSize = size
	f.lastContentType = contentType
	_, _ = io.Copy(io.Discard, body)
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (f *fakeStore) Get(_ context.Context, _ string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: key}, nil
}

func (f *fakeStore) Delete(_ context.Context, _ string) error { return nil }

type fakeRepo struct {
	registry.Repository
	recorded []registry.RecordExportInput
}

func (f *fakeRepo) RecordExport(_ context.Context, in registry.RecordExportInput) (registry.Export, error) {
	f.recorded = append(f.recorded, in)
	return registry.Export{
		ExportID:      int64(len(f.recorded)),
		WatchID:       in.WatchID,
		StatementName: in.StatementName,
		Path:          in.Path,
		Format:        in.Format,
		RowCount:      in.RowCount,
		FileSizeBytes: in.FileSizeBytes,
		CreatedBy:     in.CreatedBy,
	}, nil
}

func TestExportUploadsAndRecords(t *testing.T) {
	store := &fakeStore{}
	repo := &fakeRepo{}
	exporter := &Exporter{
		Store:     store,
		Repo:      repo,
		CreatedBy: "streamlens-api",
		Clock:     func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) },
	}

	record, err := exporter.Export(context.Background(), Input{
		WatchID:       "watch-1",
		StatementName: "orders-agg",
		Environment:   "env-1",
		Rows: []results.NormalizedRow{
			{Seq: 0, Op: "+I", Columns: []results.Column{{Name: "word", Value: "a"}}},
		},
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	wantKey := "exports/env-1/orders-agg/date=2026-08-29/watch-1.parquet"
	if store.lastKey != wantKey {
		t.Fatalf("uploaded key = %q, want %q", store.lastKey, wantKey)
	}
	if store.lastSize == 0 {
		t.Fatal("uploaded size = 0")
	}
	if store.lastContentType != storage.ContentTypeParquet {
		t.Fatalf("content type = %q, want %q", store.lastContentType, storage.ContentTypeParquet)
	}
	if len(repo.recorded) != 1 {
		t.Fatalf("recorded exports = %d, want 1", len(repo.recorded))
	}
	if repo.recorded[0].RowCount != 1 || repo.recorded[0].Format != "parquet" {
		t.Fatalf("recorded = %#v", repo.recorded[0])
	}
	if record.Path != wantKey {
		t.Fatalf("record.Path = %q", record.Path)
	}
}

func TestExportRejectsEmptySnapshot(t *testing.T) {
	exporter := &Exporter{Store: &fakeStore{}, Repo: &fakeRepo{}}
	if _, err := exporter.Export(context.Background(), Input{WatchID: "watch-1", StatementName: "orders-agg", Environment: "env-1"}); err == nil {
		t.Fatal("expected error for empty snapshot")
	}
}
