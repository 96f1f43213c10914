package services

import "strings"

// CountWords counts whitespace-separated tokens. Leading, trailing and
// repeated whitespace contribute nothing, so a blank string counts as zero.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
