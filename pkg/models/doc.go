package models

import "time"

// Doc is the loosely-typed document shape crossing the store boundary.
// Typed models decode from and encode to Doc at the edge; everything above
// the boundary works with the typed structs.
type Doc = map[string]any

func docString(d Doc, key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

func docBool(d Doc, key string) bool {
	if v, ok := d[key].(bool); ok {
		return v
	}
	return false
}

func docInt(d Doc, key string) (int64, bool) {
	switch v := d[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// docTimeISO decodes an ISO-8601/RFC-3339 timestamp field.
func docTimeISO(d Doc, key string) (time.Time, bool) {
	s := docString(d, key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// docTimeMs decodes an epoch-milliseconds timestamp field (the legacy
// schema's representation).
func docTimeMs(d Doc, key string) (time.Time, bool) {
	ms, ok := docInt(d, key)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

func isoString(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
