package repositorycache

import (
	"strings"
	"unicode"
)

// toSnake turns a reflected type name into a snake_case namespace segment.
// Any rune that is not a letter or digit ends the current word, so pointer
// and generic punctuation never reaches a cache key.
func toSnake(s string) string {
	runes := []rune(s)
	words := make([]string, 0, 4)
	var word []rune

	flush := func() {
		if len(word) > 0 {
			words = append(words, string(word))
			word = word[:0]
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				// "HTTPServer" splits before the S, "MusicRow" before the R.
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					flush()
				}
			}
			word = append(word, unicode.ToLower(r))
		case unicode.IsLower(r):
			word = append(word, r)
		case unicode.IsDigit(r):
			if i > 0 && !unicode.IsDigit(runes[i-1]) {
				flush()
			}
			word = append(word, r)
		default:
			flush()
		}
	}
	flush()

	return strings.Join(words, "_")
}
