// Package strings provides string list helpers shared by config parsing and
// remote listings.
package strings

import "strings"

// Compact trims every value and drops blanks and repeats. Survivors keep the
// position of their first occurrence. The result is nil when nothing is left.
//
//	Compact([]string{" sports", "media", "sports ", ""}) // [sports media]
func Compact(values []string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// SplitList parses a comma separated setting such as a broker list.
func SplitList(value string) []string {
	return Compact(strings.Split(value, ","))
}
