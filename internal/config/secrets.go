package config

import "strings"

// sensitiveMarkers flag worker env entries whose values are masked for display.
var sensitiveMarkers = []string{"KEY", "TOKEN", "SECRET", "PASSWORD", "CREDENTIAL"}

// IsSensitive reports whether an env var name looks like it holds a secret.
func IsSensitive(name string) bool {
	upper := strings.ToUpper(name)
	for _, m := range sensitiveMarkers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

// MaskValue returns a masked version of a secret for display.
// Shows the first 4 and last 4 characters of long values.
func MaskValue(value string) string {
	if value == "" {
		return "(not set)"
	}
	if len(value) <= 12 {
		return "***"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

// MaskEnv returns KEY=VALUE entries with sensitive values masked.
func MaskEnv(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, kv := range entries {
		name, value, ok := strings.Cut(kv, "=")
		if ok && IsSensitive(name) {
			kv = name + "=" + MaskValue(value)
		}
		out = append(out, kv)
	}
	return out
}
