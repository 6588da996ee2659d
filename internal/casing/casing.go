// Package casing converts JSON object keys between the underscore-separated
// form used at rest and the medial-capital form used by the application.
//
// The transforms operate on values produced by encoding/json decoding into
// interface{}: objects are map[string]interface{}, arrays are []interface{},
// everything else is a scalar and is returned unchanged.
package casing

import "strings"

// SnakeToCamel upper-cases every lowercase ASCII letter that follows an
// underscore and drops that underscore. "total_score" becomes "totalScore".
// Underscores not followed by a lowercase letter are kept.
func SnakeToCamel(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' && i+1 < len(s) && s[i+1] >= 'a' && s[i+1] <= 'z' {
			b.WriteByte(s[i+1] - ('a' - 'A'))
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// CamelToSnake replaces every upper-case ASCII letter with an underscore
// followed by its lower-case form. "overallFeedback" becomes
// "overall_feedback". Other characters are copied as they are.
func CamelToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			b.WriteByte('_')
			b.WriteByte(c + ('a' - 'A'))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ToCamel returns a copy of v with every object key converted by SnakeToCamel.
func ToCamel(v interface{}) interface{} {
	return transform(v, SnakeToCamel)
}

// ToSnake returns a copy of v with every object key converted by CamelToSnake.
func ToSnake(v interface{}) interface{} {
	return transform(v, CamelToSnake)
}

func transform(v interface{}, key func(string) string) interface{} {
	switch value := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(value))
		for k, item := range value {
			out[key(k)] = transform(item, key)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(value))
		for i, item := range value {
			out[i] = transform(item, key)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(value))
		for i, item := range value {
			out[i] = transform(item, key)
		}
		return out
	default:
		return v
	}
}
