package replay

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/streamlens/streamlens/internal/storage"
)

// Request replays SQL over one exported snapshot. The export is exposed as a
// view named "results" with columns seq, op and cell_json.
type Request struct {
	SQL        string
	RowLimit   int
	ExportPath string
	SizeBytes  int64
}

type Result struct {
	Columns      []string
	Rows         [][]any
	ScannedBytes int64
	Duration     time.Duration
}

// Engine runs read-only SQL over exported parquet snapshots with an embedded
// DuckDB instance. Each execution downloads the export to a scratch
// directory, so no state survives between calls.
type Engine struct {
	Store storage.ObjectStore
}

func NewEngine(store storage.ObjectStore) *Engine {
	return &Engine{Store: store}
}

func (e *Engine) Execute(ctx context.Context, request Request) (Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	if err := validateReadOnly(sqlText); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(request.ExportPath) == "" {
		return Result{}, fmt.Errorf("export path is required")
	}
	if e.Store == nil {
		return Result{}, fmt.Errorf("object store is required")
	}

	start := time.Now()
	workDir, err := os.MkdirTemp("", "streamlens-replay-")
	if err != nil {
		return Result{}, fmt.Errorf("create replay temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath := filepath.Join(workDir, "export.parquet")
	if err := e.download(ctx, request.ExportPath, localPath); err != nil {
		return Result{}, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW results AS SELECT * FROM read_parquet(%s)`, quoteString(localPath))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return Result{}, fmt.Errorf("create results view: %w", err)
	}

	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return Result{}, fmt.Errorf("execute replay query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return Result{
		Columns:      columns,
		Rows:         resultRows,
		ScannedBytes: request.SizeBytes,
		Duration:     time.Since(start),
	}, nil
}

func (e *Engine) download(ctx context.Context, objectPath, localPath string) error {
	reader, err := e.Store.Get(ctx, objectPath)
	if err != nil {
		return fmt.Errorf("get export %q: %w", objectPath, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file %q: %w", localPath, err)
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("write local file %q: %w", localPath, err)
	}
	return nil
}

// validateReadOnly keeps replay strictly a reader of exports. Only SELECT and
// WITH statements pass.
func validateReadOnly(sqlText string) error {
	upper := strings.ToUpper(strings.TrimSpace(sqlText))
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
		return nil
	}
	return fmt.Errorf("only SELECT and WITH statements are allowed")
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
