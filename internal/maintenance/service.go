package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/streamlens/streamlens/internal/registry"
	"github.com/streamlens/streamlens/internal/storage"
)

// Registry is the subset of the watch registry the janitor needs.
type Registry interface {
	DeleteWatchesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListStatementsWithExports(ctx context.Context) ([]string, error)
	ListExports(ctx context.Context, statementName string, limit int) ([]registry.Export, error)
	DeleteExport(ctx context.Context, exportID int64) (bool, error)
}

// SessionEvictor releases idle in-memory sessions. The API process passes
// its session service here; the standalone janitor runs with a nil evictor.
type SessionEvictor interface {
	EvictIdleBefore(cutoff time.Time) []string
}

type Config struct {
	RetentionInterval time.Duration
	SessionTTL        time.Duration
	KeepExports       int
	ExportSafetyAge   time.Duration
	CreatedBy         string
}

type Service struct {
	Registry    Registry
	ObjectStore storage.ObjectStore
	Sessions    SessionEvictor
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

type RetentionSummary struct {
	SessionsEvicted   int   `json:"sessions_evicted"`
	WatchesDeleted    int64 `json:"watches_deleted"`
	StatementsScanned int   `json:"statements_scanned"`
	ExportCandidates  int   `json:"export_candidates"`
	ExportsDeleted    int   `json:"exports_deleted"`
	Failures          int   `json:"failures"`
}

type IntegritySummary struct {
	StatementsScanned   int `json:"statements_scanned"`
	ExportsChecked      int `json:"exports_checked"`
	MissingExports      int `json:"missing_exports"`
	SizeMismatchFiles   int `json:"size_mismatch_files"`
	OperationalFailures int `json:"operational_failures"`
}

// exportScanLimit bounds how many export records per statement a retention
// pass considers. Anything beyond it is picked up by the next pass.
const exportScanLimit = 500

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := s.RunRetentionOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "retention cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "retention cycle completed", slog.Any("summary", summary))
			}
		}
	}
}

// RunRetentionOnce evicts idle sessions, prunes expired watch records, and
// trims each statement's export history down to the configured keep count.
// An export is only deleted once it is older than the safety age, and its
// object is removed before its registry record so a failure can only leave
// an orphaned object, never a dangling record.
func (s *Service) RunRetentionOnce(ctx context.Context) (RetentionSummary, error) {
	s.ensureDefaults()
	if s.Registry == nil {
		return RetentionSummary{}, fmt.Errorf("registry is required")
	}
	if s.ObjectStore == nil {
		return RetentionSummary{}, fmt.Errorf("object store is required")
	}

	summary := RetentionSummary{}
	failures := make([]string, 0)
	now := s.Clock()

	sessionCutoff := now.Add(-s.Config.SessionTTL)
	if s.Sessions != nil {
		evicted := s.Sessions.EvictIdleBefore(sessionCutoff)
		summary.SessionsEvicted = len(evicted)
	}

	deleted, err := s.Registry.DeleteWatchesBefore(ctx, sessionCutoff)
	if err != nil {
		summary.Failures++
		failures = append(failures, fmt.Sprintf("delete watches: %v", err))
	} else {
		summary.WatchesDeleted = deleted
	}

	statements, err := s.Registry.ListStatementsWithExports(ctx)
	if err != nil {
		summary.Failures++
		failures = append(failures, fmt.Sprintf("list statements: %v", err))
		statements = nil
	}
	summary.StatementsScanned = len(statements)

	safetyCutoff := now.Add(-s.Config.ExportSafetyAge)
	for _, statement := range statements {
		exports, err := s.Registry.ListExports(ctx, statement, exportScanLimit)
		if err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("statement %s list exports: %v", statement, err))
			continue
		}
		if len(exports) <= s.Config.KeepExports {
			continue
		}

		// ListExports returns newest first; everything past the keep
		// window is a deletion candidate.
		for _, record := range exports[s.Config.KeepExports:] {
			if record.CreatedAt.After(safetyCutoff) {
				continue
			}
			summary.ExportCandidates++

			if err := s.ObjectStore.Delete(ctx, record.Path); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
				summary.Failures++
				failures = append(failures, fmt.Sprintf("statement %s delete object %s: %v", statement, record.Path, err))
				continue
			}
			if _, err := s.Registry.DeleteExport(ctx, record.ExportID); err != nil {
				summary.Failures++
				failures = append(failures, fmt.Sprintf("statement %s delete export %d: %v", statement, record.ExportID, err))
				continue
			}
			summary.ExportsDeleted++
		}
	}

	if summary.ExportsDeleted > 0 {
		retentionExportsDeletedTotal.Add(float64(summary.ExportsDeleted))
	}
	if len(failures) > 0 {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("retention encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	retentionRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

// RunIntegrityCheckOnce verifies that every registered export still exists
// in the object store with its recorded size.
func (s *Service) RunIntegrityCheckOnce(ctx context.Context) (IntegritySummary, error) {
	s.ensureDefaults()
	if s.Registry == nil {
		return IntegritySummary{}, fmt.Errorf("registry is required")
	}
	if s.ObjectStore == nil {
		return IntegritySummary{}, fmt.Errorf("object store is required")
	}

	summary := IntegritySummary{}
	const maxIssueSamples = 20
	issueSamples := make([]string, 0, maxIssueSamples)
	issueCount := 0
	addIssue := func(message string) {
		issueCount++
		if len(issueSamples) < maxIssueSamples {
			issueSamples = append(issueSamples, message)
		}
	}

	statements, err := s.Registry.ListStatementsWithExports(ctx)
	if err != nil {
		return summary, fmt.Errorf("list statements: %w", err)
	}
	summary.StatementsScanned = len(statements)

	for _, statement := range statements {
		exports, err := s.Registry.ListExports(ctx, statement, exportScanLimit)
		if err != nil {
			summary.OperationalFailures++
			addIssue(fmt.Sprintf("statement %s list exports: %v", statement, err))
			continue
		}

		for _, record := range exports {
			summary.ExportsChecked++
			info, err := s.ObjectStore.Stat(ctx, record.Path)
			if err != nil {
				if errors.Is(err, storage.ErrObjectNotFound) {
					summary.MissingExports++
					addIssue(fmt.Sprintf("statement %s missing export %s (export_id=%d)", statement, record.Path, record.ExportID))
					continue
				}
				summary.OperationalFailures++
				addIssue(fmt.Sprintf("statement %s stat export %s: %v", statement, record.Path, err))
				continue
			}
			if info.Size != record.FileSizeBytes {
				summary.SizeMismatchFiles++
				addIssue(fmt.Sprintf("statement %s size mismatch for %s (expected=%d actual=%d)", statement, record.Path, record.FileSizeBytes, info.Size))
			}
		}
	}

	if summary.MissingExports > 0 {
		integrityMissingExportsTotal.Add(float64(summary.MissingExports))
	}
	if summary.MissingExports > 0 || summary.SizeMismatchFiles > 0 || summary.OperationalFailures > 0 {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		extra := issueCount - len(issueSamples)
		detail := strings.Join(issueSamples, "; ")
		if extra > 0 {
			detail = fmt.Sprintf("%s; and %d more issue(s)", detail, extra)
		}
		return summary, fmt.Errorf("integrity check found issues: %s", detail)
	}
	integrityRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Config.RetentionInterval <= 0 {
		s.Config.RetentionInterval = 10 * time.Minute
	}
	if s.Config.SessionTTL <= 0 {
		s.Config.SessionTTL = 30 * time.Minute
	}
	if s.Config.KeepExports <= 0 {
		s.Config.KeepExports = 5
	}
	if s.Config.ExportSafetyAge <= 0 {
		s.Config.ExportSafetyAge = 30 * time.Minute
	}
}
