package tables

import (
	"github.com/spf13/cast"
)

// Row is one record of a remote table. Columns vary per table, so rows stay
// open maps and callers read them through the typed accessors below.
type Row map[string]any

// Has reports whether the column is present and non-null.
func (r Row) Has(column string) bool {
	v, ok := r[column]
	return ok && v != nil
}

// String returns the column as text, or "" when absent.
func (r Row) String(column string) string {
	return cast.ToString(r[column])
}

// Int returns the column as an int. Non-numeric values yield 0.
func (r Row) Int(column string) int {
	return cast.ToInt(r[column])
}

// Float returns the column as a float64. Non-numeric values yield 0.
func (r Row) Float(column string) float64 {
	return cast.ToFloat64(r[column])
}

// Key returns the column in a form usable as a map key for joins. Numeric
// ids decoded from JSON (float64) and their string forms compare equal, so
// 3, 3.0 and "3" all yield "3".
func (r Row) Key(column string) string {
	switch v := r[column].(type) {
	case nil:
		return ""
	case float64:
		if v == float64(int64(v)) {
			return cast.ToString(int64(v))
		}
		return cast.ToString(v)
	default:
		return cast.ToString(v)
	}
}

// Index maps each row's key column to the row. Later rows win.
func Index(rows []Row, column string) map[string]Row {
	out := make(map[string]Row, len(rows))
	for _, row := range rows {
		out[row.Key(column)] = row
	}
	return out
}
