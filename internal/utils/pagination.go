// Package utils holds small parsing helpers for the HTTP layer's query
// parameters (page, page_size, the webhook event limit).
package utils

import "strconv"

// AtoiDefault parses a query parameter that should be an integer. Clients
// routinely omit page/page_size or send garbage; empty or unparseable input
// yields def. No trimming is applied, so " 42" counts as garbage.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampInt bounds n to [lo, hi]. Keeps client-supplied page sizes and event
// limits inside what a single response should carry.
func ClampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
