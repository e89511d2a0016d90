package entry

import "strings"

// NormalizeTag trims, collapses inner whitespace, and lowercases a tag
// name. Returns "" when nothing usable remains.
func NormalizeTag(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.Join(fields, " "))
}

// NormalizeTags applies NormalizeTag to each name, dropping empties and
// duplicates while preserving order.
func NormalizeTags(names []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(names))

	for _, n := range names {
		t := NormalizeTag(n)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	return out
}
