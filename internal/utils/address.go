package utils

import "strings"

// NormalizeAddress canonicalizes an on-chain address for storage and
// comparison: trimmed and lowercased, since hex addresses are
// case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
