package export

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/streamlens/streamlens/internal/results"
)

func TestEncodeRowsToParquet(t *testing.T) {
	rows := []results.NormalizedRow{
		{Seq: 0, Op: "+I", Columns: []results.Column{{Name: "word", Value: "hello"}, {Name: "count", Value: "1"}}},
		{Seq: 1, Op: "+U", Columns: []results.Column{{Name: "word", Value: "hello"}, {Name: "count", Value: "2"}}},
	}

	result, err := EncodeRowsToParquet(rows)
	if err != nil {
		t.Fatalf("EncodeRowsToParquet() error = %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d", result.RowCount)
	}
	if len(result.Data) == 0 {
		t.Fatal("expected non-empty parquet payload")
	}

	reader := parquet.NewGenericReader[parquetRow](bytes.NewReader(result.Data))
	defer func() { _ = reader.Close() }()
	decoded := make([]parquetRow, 2)
	count, err := reader.Read(decoded)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("read rows = %d", count)
	}
	if decoded[0].Seq != 0 || decoded[1].Seq != 1 {
		t.Fatalf("unexpected seqs: %+v", decoded)
	}
	if decoded[1].CellJSON != `{"count":"2","word":"hello"}` {
		t.Fatalf("CellJSON = %q", decoded[1].CellJSON)
	}
}

func TestEncodeRowsToParquetRequiresRows(t *testing.T) {
	if _, err := EncodeRowsToParquet(nil); err == nil {
		t.Fatal("expected error for empty rows")
	}
}
