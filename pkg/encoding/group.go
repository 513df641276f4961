package encoding

import "strings"

// GroupForPrinting inserts a dash every 4th character, the way rescue codes
// and printed textual identities are displayed to a user re-typing them by
// hand. It is purely cosmetic: GroupForPrinting's output is never fed back
// into Base56CheckDecode without first stripping the dashes, since Base56
// Decode already skips any character outside its alphabet.
func GroupForPrinting(s string) string {
	if len(s) <= 4 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for i := 0; i < len(s); i++ {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// StripGrouping removes dashes and whitespace inserted by GroupForPrinting.
func StripGrouping(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, s)
}
