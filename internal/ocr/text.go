package ocr

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText composes s to NFC and strips zero-width and control characters.
// Inner spacing is left alone so word boundaries survive.
func NormalizeText(s string) string {
	if s == "" {
		return s
	}
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\u200B', '\u200C', '\u200D', '\uFEFF':
			continue
		case '\n', '\r', '\t':
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// normalizeDocument applies NormalizeText to every word in place.
func normalizeDocument(doc *Document) {
	if doc == nil {
		return
	}
	for pi := range doc.Pages {
		for bi := range doc.Pages[pi].Blocks {
			for li := range doc.Pages[pi].Blocks[bi].Lines {
				words := doc.Pages[pi].Blocks[bi].Lines[li].Words
				for wi := range words {
					words[wi].Text = NormalizeText(words[wi].Text)
				}
			}
		}
	}
}
