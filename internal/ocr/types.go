// Package ocr reads text from image crops through a pluggable engine and
// flattens the engine's page/block/line/word hierarchy into plain text.
package ocr

import "strings"

// Document is the hierarchical output of an engine. The JSON shape matches the
// docTR export format so HTTP engines can decode it directly.
type Document struct {
	Pages []Page `json:"pages"`
}

// Page is one input image.
type Page struct {
	Blocks []Block `json:"blocks"`
}

// Block is a group of lines.
type Block struct {
	Lines []Line `json:"lines"`
}

// Line is a sequence of words.
type Line struct {
	Words []Word `json:"words"`
}

// Word is a recognized token. Confidence is nil when the engine did not score it.
type Word struct {
	Text       string   `json:"value"`
	Confidence *float64 `json:"confidence"`
}

// Result is the flattened reading of one image.
type Result struct {
	Text       string  `json:"text"`
	Words      []Word  `json:"words"`
	Confidence float64 `json:"confidence"`
}

// Flatten visits words in page, block, line, word order. Text is the word texts
// joined by single spaces; Confidence is the mean over scored words, 0 if none.
func Flatten(doc *Document) Result {
	if doc == nil {
		return Result{Words: []Word{}}
	}

	words := make([]Word, 0)
	texts := make([]string, 0)
	var sum float64
	var scored int
	for _, p := range doc.Pages {
		for _, b := range p.Blocks {
			for _, l := range b.Lines {
				for _, w := range l.Words {
					words = append(words, w)
					texts = append(texts, w.Text)
					if w.Confidence != nil {
						sum += *w.Confidence
						scored++
					}
				}
			}
		}
	}

	var conf float64
	if scored > 0 {
		conf = sum / float64(scored)
	}
	return Result{Text: strings.Join(texts, " "), Words: words, Confidence: conf}
}

// Conf returns a pointer to c, for building Words.
func Conf(c float64) *float64 { return &c }
