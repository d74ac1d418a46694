package utils

import (
	"regexp"
	"strings"
)

// MakeMap creates and returns a map[string]string containing a single key-value pair.
func MakeMap(key, value string) map[string]string {
	return map[string]string{key: value}
}

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeKey lower-cases s and collapses runs of whitespace so that
// "1234  Market St " and "1234 market st" share a cache entry.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(whitespace.ReplaceAllString(s, " ")))
}
