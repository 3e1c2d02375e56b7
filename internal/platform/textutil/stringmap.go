package textutil

import "strings"

// Pairs builds a map from alternating key/value arguments. Keys and values are
// trimmed; entries with an empty key or value are skipped. A trailing key
// without a value is ignored.
func Pairs(kv ...string) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key := strings.TrimSpace(kv[i])
		value := strings.TrimSpace(kv[i+1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

// Merge copies extra into base without overwriting keys already present in base.
func Merge(base map[string]string, extra map[string]string) map[string]string {
	if base == nil {
		base = make(map[string]string, len(extra))
	}
	for key, value := range extra {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, exists := base[key]; exists {
			continue
		}
		base[key] = strings.TrimSpace(value)
	}
	return base
}
