package results

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// AbsentValue stands in for column values the gateway sent as null or did not
// send at all. Parsing never fails on a sparse row; it substitutes this
// marker instead.
const AbsentValue = "NULL"

// UnknownOp stands in for change-op kinds the gateway sent that the parser
// does not recognize.
const UnknownOp = "UNKNOWN"

// Column is one named, rendered cell of a normalized row.
type Column struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NormalizedRow is the engine's schema-agnostic row representation. Seq is
// assigned by the buffer at append time, increases monotonically, and is the
// unit of pagination.
type NormalizedRow struct {
	Seq     int64    `json:"seq"`
	Op      string   `json:"op"`
	Columns []Column `json:"columns"`
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return AbsentValue
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case json.Number:
		return typed.String()
	case []any, map[string]any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", typed)
	}
}
