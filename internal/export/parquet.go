package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/streamlens/streamlens/internal/results"
)

type ParquetEncodeResult struct {
	Data     []byte
	RowCount int64
}

// parquetRow flattens a normalized row for columnar storage. Column values
// stay together as one JSON object keyed by column name, so files remain
// readable regardless of the statement's schema.
type parquetRow struct {
	Seq      int64  `parquet:"seq"`
	Op       string `parquet:"op"`
	CellJSON string `parquet:"cell_json"`
}

// EncodeRowsToParquet serializes a buffered result snapshot.
func EncodeRowsToParquet(rows []results.NormalizedRow) (ParquetEncodeResult, error) {
	if len(rows) == 0 {
		return ParquetEncodeResult{}, fmt.Errorf("rows are required")
	}

	records := make([]parquetRow, 0, len(rows))
	for _, row := range rows {
		cells := make(map[string]string, len(row.Columns))
		for _, col := range row.Columns {
			cells[col.Name] = col.Value
		}
		encoded, err := json.Marshal(cells)
		if err != nil {
			return ParquetEncodeResult{}, fmt.Errorf("encode row %d cells: %w", row.Seq, err)
		}
		records = append(records, parquetRow{
			Seq:      row.Seq,
			Op:       row.Op,
			CellJSON: string(encoded),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRow](buf)
	if _, err := writer.Write(records); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{
		Data:     buf.Bytes(),
		RowCount: int64(len(records)),
	}, nil
}
