// Package payload extracts display text from the heterogeneous JSON shapes
// the backend returns (stream deltas, single-shot answers, error bodies).
package payload

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Field precedence lists. Earlier fields win.
var (
	// DeltaFields is used for each frame of an event stream.
	DeltaFields = []string{"content", "message"}
	// AnswerFields is used for single-shot JSON answers.
	AnswerFields = []string{"content", "message", "detail"}
	// ErrorFields is used for non-success response bodies.
	ErrorFields = []string{"detail", "message", "content", "error"}
)

// IsJSON reports whether raw is a syntactically valid JSON document.
func IsJSON(raw string) bool {
	return gjson.Valid(raw)
}

// Lookup returns the first non-empty value among fields in the JSON object
// raw. ok is false when raw is not valid JSON, is not an object, or none of
// the fields carry a value. Non-string values are rendered as their JSON
// text, so {"content": 42} yields "42".
func Lookup(raw string, fields ...string) (string, bool) {
	if !gjson.Valid(raw) {
		return "", false
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return "", false
	}
	for _, field := range fields {
		v := doc.Get(field)
		if text, ok := valueText(v); ok {
			return text, true
		}
	}
	return "", false
}

// Coalesce returns the text of the first field that is present and not
// null. That field decides the result: an empty string, zero or false stops
// the search and yields ok == false instead of falling through to the next
// field.
func Coalesce(raw string, fields ...string) (string, bool) {
	if !gjson.Valid(raw) {
		return "", false
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return "", false
	}
	for _, field := range fields {
		v := doc.Get(field)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if isFalsy(v) {
			return "", false
		}
		return valueText(v)
	}
	return "", false
}

func isFalsy(v gjson.Result) bool {
	switch v.Type {
	case gjson.String:
		return v.Str == ""
	case gjson.Number:
		return v.Num == 0
	case gjson.False:
		return true
	}
	return false
}

// TextOr returns Lookup(raw, fields...) or, when nothing matched, the raw
// text itself.
func TextOr(raw string, fields ...string) string {
	if text, ok := Lookup(raw, fields...); ok {
		return text
	}
	return raw
}

func valueText(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.Null:
		return "", false
	case gjson.String:
		if v.Str == "" {
			return "", false
		}
		return v.Str, true
	case gjson.JSON:
		// FastAPI validation errors put a list of objects under detail.
		if v.IsArray() {
			var parts []string
			for _, item := range v.Array() {
				if msg := item.Get("msg"); msg.Exists() && msg.String() != "" {
					parts = append(parts, msg.String())
				} else if text, ok := valueText(item); ok {
					parts = append(parts, text)
				}
			}
			if len(parts) == 0 {
				return "", false
			}
			return strings.Join(parts, "; "), true
		}
		return v.Raw, true
	default:
		return v.Raw, true
	}
}
