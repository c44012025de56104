package fieldpath

import (
	"strings"
)

// Separator is the canonical separator between relation segments and the leaf field.
const Separator = "."

var legacySeparators = []string{"__", "/"}

// Normalize trims whitespace around the path and every component and
// rewrites legacy separators ("__", "/") to the canonical dot.
func Normalize(path string) string {
	normalized := strings.TrimSpace(path)
	for _, sep := range legacySeparators {
		normalized = strings.ReplaceAll(normalized, sep, Separator)
	}
	parts := strings.Split(normalized, Separator)
	kept := parts[:0]
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, Separator)
}

// NormalizeAll normalizes every name and drops empty and duplicate entries,
// keeping first-seen order.
func NormalizeAll(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	result := make([]string, 0, len(paths))
	for _, path := range paths {
		normalized := Normalize(path)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result
}

// Components splits a normalized path into its components
func Components(path string) []string {
	if path == "" {
		return []string{}
	}

	return strings.Split(path, Separator)
}

// Split separates the relation prefix from the leaf field
// ("site.owner.email" -> ["site", "owner"], "email").
func Split(path string) ([]string, string) {
	components := Components(Normalize(path))
	if len(components) == 0 {
		return nil, ""
	}
	return components[:len(components)-1], components[len(components)-1]
}

// Depth returns the number of components of a path
func Depth(path string) int {
	if path == "" {
		return 0
	}

	return strings.Count(path, Separator) + 1
}
