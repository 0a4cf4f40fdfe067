package utils

import "unicode/utf8"

// TruncateRunes keeps at most max characters of s. Multi byte characters are never split.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}

	var count int
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
