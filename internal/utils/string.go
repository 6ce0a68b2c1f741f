package utils

import "strconv"

// FormatWithCommas renders n with thousands separators for CLI output,
// e.g. 10739 -> "10,739".
func FormatWithCommas(n int) string {
	s := strconv.Itoa(n)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-" + s
	}
	return s
}
