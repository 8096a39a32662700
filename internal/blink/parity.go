package blink

import "strings"

const (
	Visible = "visible"
	Hidden  = "hidden"
)

// ValidVisibility reports whether v is one of the two states a blinking
// colon may be in. "collapse" and the empty string are rejected.
func ValidVisibility(v string) bool {
	return v == Visible || v == Hidden
}

// ParseSeconds extracts the seconds value from the clock's display text:
// the last two characters of the trimmed text, both of which must be ASCII digits.
func ParseSeconds(text string) (int, bool) {
	r := []rune(strings.TrimSpace(text))
	if len(r) < 2 {
		return 0, false
	}
	tens, ones := r[len(r)-2], r[len(r)-1]
	if !isDigit(tens) || !isDigit(ones) {
		return 0, false
	}
	return int(tens-'0')*10 + int(ones-'0'), true
}

// ExpectedVisibility returns the colon state for a given second: shown on
// even seconds, hidden on odd ones.
func ExpectedVisibility(seconds int) string {
	if seconds%2 == 0 {
		return Visible
	}
	return Hidden
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
