package store

import (
	"database/sql"
	"reflect"
	"strings"

	"github.com/lib/pq"
)

// driverValues adapts bound parameter values to what the driver accepts.
// Postgres receives list parameters as arrays; byte slices are not lists.
func driverValues(dialect string, values []any) []any {
	if dialect != "postgres" {
		return values
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
		if v == nil {
			continue
		}
		if _, isBytes := v.([]byte); isBytes {
			continue
		}
		if k := reflect.TypeOf(v).Kind(); k == reflect.Slice || k == reflect.Array {
			out[i] = pq.Array(v)
		}
	}
	return out
}

// textTypes are database type names whose values some drivers return as
// raw bytes.
var textTypes = map[string]bool{
	"CHAR": true, "VARCHAR": true, "TEXT": true, "NCHAR": true, "NVARCHAR": true,
	"TINYTEXT": true, "MEDIUMTEXT": true, "LONGTEXT": true, "ENUM": true,
	"DECIMAL": true, "NUMERIC": true, "JSON": true,
}

// normalize converts raw bytes of text-typed columns to strings, so read
// plans see the same value kinds on every driver.
func normalize(types []*sql.ColumnType, row []any) []any {
	for i, v := range row {
		b, ok := v.([]byte)
		if !ok || i >= len(types) {
			continue
		}
		if textTypes[strings.ToUpper(types[i].DatabaseTypeName())] {
			row[i] = string(b)
		}
	}
	return row
}
