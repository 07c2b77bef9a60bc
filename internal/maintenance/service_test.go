package maintenance

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/streamlens/streamlens/internal/registry"
	"github.com/streamlens/streamlens/internal/storage"
)

type fakeRegistry struct {
	exports        map[string][]registry.Export
	watchesDeleted int64
	deletedExports []int64
	deleteCutoff   time.Time
}

func (f *fakeRegistry) DeleteWatchesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.deleteCutoff = cutoff
	return f.watchesDeleted, nil
}

func (f *fakeRegistry) ListStatementsWithExports(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(f.exports))
	for name := range f.exports {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeRegistry) ListExports(_ context.Context, statementName string, _ int) ([]registry.Export, error) {
	return f.exports[statementName], nil
}

func (f *fakeRegistry) DeleteExport(_ context.Context, exportID int64) (bool, error) {
	f.deletedExports = append(f.deletedExports, exportID)
	return true, nil
}

type fakeObjectStore struct {
	objects map[string]int64
	deleted []string
}

func (f *fakeObjectStore) Put(_ context.Context, key string, _ io.Reader, size int64, _ string) (storage.ObjectInfo, error) {
	f.objects[key] = size
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if _, ok := f.objects[key]; !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (f *fakeObjectStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	size, ok := f.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeEvictor struct {
	evicted []string
	cutoff  time.Time
}

func (f *fakeEvictor) EvictIdleBefore(cutoff time.Time) []string {
	f.cutoff = cutoff
	return f.evicted
}

func newestFirstExports(statement string, count int, base time.Time) []registry.Export {
	exports := make([]registry.Export, 0, count)
	for i := 0; i < count; i++ {
		exports = append(exports, registry.Export{
			ExportID:      int64(count - i),
			StatementName: statement,
			Path:          statement + "/export-" + string(rune('a'+count-i-1)) + ".parquet",
			FileSizeBytes: 100,
			CreatedAt:     base.Add(-time.Duration(i) * time.Hour),
		})
	}
	return exports
}

func TestRunRetentionOnceTrimsOldExports(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	exports := newestFirstExports("orders-agg", 5, now.Add(-time.Hour))
	repo := &fakeRegistry{
		exports:        map[string][]registry.Export{"orders-agg": exports},
		watchesDeleted: 3,
	}
	store := &fakeObjectStore{objects: map[string]int64{}}
	for _, record := range exports {
		store.objects[record.Path] = record.FileSizeBytes
	}
	evictor := &fakeEvictor{evicted: []string{"sess-1", "sess-2"}}

	svc := &Service{
		Registry:    repo,
		ObjectStore: store,
		Sessions:    evictor,
		Config: Config{
			SessionTTL:      30 * time.Minute,
			KeepExports:     2,
			ExportSafetyAge: 10 * time.Minute,
		},
		Clock: func() time.Time { return now },
	}

	summary, err := svc.RunRetentionOnce(context.Background())
	if err != nil {
		t.Fatalf("RunRetentionOnce() error = %v", err)
	}
	if summary.SessionsEvicted != 2 {
		t.Fatalf("SessionsEvicted = %d, want 2", summary.SessionsEvicted)
	}
	if summary.WatchesDeleted != 3 {
		t.Fatalf("WatchesDeleted = %d, want 3", summary.WatchesDeleted)
	}
	if summary.ExportsDeleted != 3 {
		t.Fatalf("ExportsDeleted = %d, want 3", summary.ExportsDeleted)
	}
	if len(repo.deletedExports) != 3 {
		t.Fatalf("deleted export records = %v", repo.deletedExports)
	}
	if len(store.objects) != 2 {
		t.Fatalf("remaining objects = %d, want 2", len(store.objects))
	}
	wantCutoff := now.Add(-30 * time.Minute)
	if !evictor.cutoff.Equal(wantCutoff) || !repo.deleteCutoff.Equal(wantCutoff) {
		t.Fatalf("cutoffs = %v / %v, want %v", evictor.cutoff, repo.deleteCutoff, wantCutoff)
	}
}

func TestRunRetentionOnceRespectsSafetyAge(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	// All exports are too young to delete even though they exceed the keep
	// count.
	exports := []registry.Export{
		{ExportID: 3, StatementName: "orders-agg", Path: "orders-agg/c.parquet", FileSizeBytes: 10, CreatedAt: now.Add(-time.Minute)},
		{ExportID: 2, StatementName: "orders-agg", Path: "orders-agg/b.parquet", FileSizeBytes: 10, CreatedAt: now.Add(-2 * time.Minute)},
		{ExportID: 1, StatementName: "orders-agg", Path: "orders-agg/a.parquet", FileSizeBytes: 10, CreatedAt: now.Add(-3 * time.Minute)},
	}
	repo := &fakeRegistry{exports: map[string][]registry.Export{"orders-agg": exports}}
	store := &fakeObjectStore{objects: map[string]int64{
		"orders-agg/a.parquet": 10,
		"orders-agg/b.parquet": 10,
		"orders-agg/c.parquet": 10,
	}}

	svc := &Service{
		Registry:    repo,
		ObjectStore: store,
		Config:      Config{KeepExports: 1, ExportSafetyAge: time.Hour},
		Clock:       func() time.Time { return now },
	}

	summary, err := svc.RunRetentionOnce(context.Background())
	if err != nil {
		t.Fatalf("RunRetentionOnce() error = %v", err)
	}
	if summary.ExportsDeleted != 0 || len(store.deleted) != 0 {
		t.Fatalf("deleted exports too young: summary=%+v deleted=%v", summary, store.deleted)
	}
}

func TestRunIntegrityCheckOnceReportsMissingAndMismatched(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &fakeRegistry{exports: map[string][]registry.Export{
		"orders-agg": {
			{ExportID: 1, StatementName: "orders-agg", Path: "orders-agg/ok.parquet", FileSizeBytes: 10, CreatedAt: now},
			{ExportID: 2, StatementName: "orders-agg", Path: "orders-agg/missing.parquet", FileSizeBytes: 10, CreatedAt: now},
			{ExportID: 3, StatementName: "orders-agg", Path: "orders-agg/short.parquet", FileSizeBytes: 10, CreatedAt: now},
		},
	}}
	store := &fakeObjectStore{objects: map[string]int64{
		"orders-agg/ok.parquet":    10,
		"orders-agg/short.parquet": 7,
	}}

	svc := &Service{
		Registry:    repo,
		ObjectStore: store,
		Clock:       func() time.Time { return now },
	}

	summary, err := svc.RunIntegrityCheckOnce(context.Background())
	if err == nil {
		t.Fatal("expected integrity error")
	}
	if summary.ExportsChecked != 3 {
		t.Fatalf("ExportsChecked = %d, want 3", summary.ExportsChecked)
	}
	if summary.MissingExports != 1 {
		t.Fatalf("MissingExports = %d, want 1", summary.MissingExports)
	}
	if summary.SizeMismatchFiles != 1 {
		t.Fatalf("SizeMismatchFiles = %d, want 1", summary.SizeMismatchFiles)
	}
}
