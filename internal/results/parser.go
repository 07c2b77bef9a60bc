package results

import (
	"fmt"

	"github.com/streamlens/streamlens/internal/gateway"
)

// ParseRow maps one raw gateway row onto the statement's schema columns. It
// is pure and total: null or missing values become AbsentValue, surplus
// values beyond the schema get synthesized column names, and an unknown
// change-op becomes UnknownOp.
func ParseRow(raw gateway.RawRow, columns []gateway.ColumnDef) NormalizedRow {
	width := len(columns)
	if len(raw.Row) > width {
		width = len(raw.Row)
	}

	parsed := make([]Column, 0, width)
	for i := 0; i < width; i++ {
		name := ""
		if i < len(columns) {
			name = columns[i].Name
		}
		if name == "" {
			name = fmt.Sprintf("col_%d", i)
		}

		value := AbsentValue
		if i < len(raw.Row) {
			value = formatValue(raw.Row[i])
		}
		parsed = append(parsed, Column{Name: name, Value: value})
	}

	return NormalizedRow{Op: opLabel(raw.Op), Columns: parsed}
}

// opLabel renders the gateway's changelog operation kinds the way streaming
// SQL tooling conventionally spells them.
func opLabel(op int) string {
	switch op {
	case 0:
		return "+I"
	case 1:
		return "-U"
	case 2:
		return "+U"
	case 3:
		return "-D"
	default:
		return UnknownOp
	}
}
