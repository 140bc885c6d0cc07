// Package utils provides small, generic helpers used across layers. Nothing
// in here knows about the domain.
package utils

import "strconv"

// AtoiDefault parses s as an int and falls back to def when s is empty or
// not a valid integer. Query parameters are parsed with it so a malformed
// value degrades to the documented default instead of an error.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Offset converts a 1-based page number and page size into a row offset.
func Offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
