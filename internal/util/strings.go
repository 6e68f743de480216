package util

import "strings"

// SafeTruncate returns at most the first maxLen bytes of s. It is used to log
// a recognisable prefix of codes and tokens without leaking them.
func SafeTruncate(s string, maxLen int) string {
	switch {
	case maxLen <= 0:
		return ""
	case len(s) <= maxLen:
		return s
	default:
		return s[:maxLen]
	}
}

// NormalizeURL strips trailing slashes so "https://a/" and "https://a" compare equal.
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}
