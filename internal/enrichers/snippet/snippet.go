// Package snippet cuts the sentence around a match out of document text.
package snippet

import (
	"strings"
	"unicode/utf8"
)

// MaxLength bounds a snippet in runes.
const MaxLength = 160

// Around returns the sentence or line containing text[start:end], with
// whitespace collapsed.
func Around(text string, start, end int) string {
	if start < 0 || end > len(text) || start > end {
		return ""
	}
	from := start
	for from > 0 {
		c := text[from-1]
		if c == '\n' || ((c == '.' || c == '!' || c == '?' || c == ';') && from < len(text) && isSpace(text[from])) {
			break
		}
		from--
	}
	to := end
	for to < len(text) {
		c := text[to]
		if c == '\n' {
			break
		}
		if (c == '.' || c == '!' || c == '?' || c == ';') && (to+1 == len(text) || isSpace(text[to+1])) {
			break
		}
		to++
	}

	s := strings.Join(strings.Fields(text[from:to]), " ")
	if utf8.RuneCountInString(s) > MaxLength {
		s = string([]rune(s)[:MaxLength])
	}
	return s
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
