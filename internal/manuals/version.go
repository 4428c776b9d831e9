package manuals

import "strings"

const defaultVersion = "1.0"

// NormalizeVersion trims the version string and strips a leading "v".
func NormalizeVersion(rawInput string) string {
	trimmed := strings.TrimSpace(rawInput)
	trimmed = strings.TrimPrefix(trimmed, "v")
	trimmed = strings.TrimPrefix(trimmed, "V")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return defaultVersion
	}
	return trimmed
}

// AppendVersion adds version to history unless its normalized form is already present.
// The input slice is never modified.
func AppendVersion(history []string, version string) []string {
	normalized := NormalizeVersion(version)
	result := NormalizeHistory(history)
	for _, existing := range result {
		if existing == normalized {
			return result
		}
	}
	return append(result, normalized)
}

// NormalizeHistory normalizes every entry and drops repeats, keeping first occurrences.
func NormalizeHistory(history []string) []string {
	result := make([]string, 0, len(history)+1)
	seen := make(map[string]struct{}, len(history))
	for _, entry := range history {
		normalized := NormalizeVersion(entry)
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result
}
