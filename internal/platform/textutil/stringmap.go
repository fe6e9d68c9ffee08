// Package textutil holds small string helpers shared across transports.
package textutil

import "strings"

// NormalizeStringMap returns a copy of values with surrounding whitespace
// stripped from every key and value. Entries whose key trims to the empty
// string are dropped, and a map with nothing left collapses to nil so
// callers can hand the result straight to a Pub/Sub message's attribute
// set without publishing blank attribute names.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	cleaned := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		cleaned[key] = strings.TrimSpace(value)
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}
