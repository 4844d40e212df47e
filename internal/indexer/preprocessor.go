package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes record content for indexing: invalid UTF-8 and control
// characters are dropped and whitespace runs collapse to one space.
func Preprocess(text string) string {
	text = strings.ToValidUTF8(text, "")
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := true
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		case unicode.IsControl(r), r == '\u200b', r == '\ufeff':
		default:
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return strings.TrimRight(b.String(), " ")
}
