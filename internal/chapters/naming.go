package chapters

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var chapterToken = regexp.MustCompile(`ch\d`)

var (
	upper = cases.Upper(language.Und)
	lower = cases.Lower(language.Und)
)

// FormatName turns a notebook filename stem into its display name: every
// "ch<digit>" becomes "<ordinal>.", underscores become spaces, and each word
// is capitalized with the rest of it lower-cased.
func FormatName(stem string, ordinal int) string {
	s := chapterToken.ReplaceAllLiteralString(stem, strconv.Itoa(ordinal)+".")
	s = strings.ReplaceAll(s, "_", " ")
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return upper.String(w[:size]) + lower.String(w[size:])
}
