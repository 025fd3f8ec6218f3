package render

import "unicode/utf8"

// Excerpt returns the first n characters of s followed by "...", or s
// unchanged when it is not longer than n.
func Excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
