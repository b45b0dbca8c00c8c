package diff3

import "strings"

// SplitLines splits text on "\n". Empty lines are kept, a trailing newline
// yields a trailing empty line, and "" yields a single empty line. All three
// merge inputs must be split with this function so alignment stays exact.
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
