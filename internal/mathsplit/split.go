// Package mathsplit separates literal text from TeX math in question content.
package mathsplit

import "strings"

// Kind of a segment.
type Kind string

const (
	Literal Kind = "literal"
	Math    Kind = "math"
)

// Segment is one piece of split text. Math segments carry the delimiters that
// surrounded them so Join can rebuild the source.
type Segment struct {
	Kind        Kind   `json:"kind"`
	Content     string `json:"content"`
	DisplayMode bool   `json:"displayMode"`
	Open        string `json:"-"`
	Close       string `json:"-"`
}

type delimiter struct {
	open, close string
	display     bool
}

// Longest openers first so "$$" wins over "$".
var delimiters = []delimiter{
	{open: "$$", close: "$$", display: true},
	{open: `\[`, close: `\]`, display: true},
	{open: `\(`, close: `\)`, display: false},
	{open: "$", close: "$", display: false},
}

// Split scans text left to right. Unterminated or empty math stays literal,
// and an escaped dollar (\$) is never a delimiter.
func Split(text string) []Segment {
	var segs []Segment
	litStart := 0
	i := 0
	for i < len(text) {
		if text[i] == '\\' && i+1 < len(text) && (text[i+1] == '$' || text[i+1] == '\\') {
			i += 2
			continue
		}
		d, content, end, ok := matchAt(text, i)
		if !ok {
			i++
			continue
		}
		if litStart < i {
			segs = append(segs, Segment{Kind: Literal, Content: text[litStart:i]})
		}
		segs = append(segs, Segment{
			Kind:        Math,
			Content:     content,
			DisplayMode: d.display,
			Open:        d.open,
			Close:       d.close,
		})
		i = end
		litStart = end
	}
	if litStart < len(text) {
		segs = append(segs, Segment{Kind: Literal, Content: text[litStart:]})
	}
	return segs
}

func matchAt(text string, i int) (delimiter, string, int, bool) {
	for _, d := range delimiters {
		if !strings.HasPrefix(text[i:], d.open) {
			continue
		}
		start := i + len(d.open)
		end := findClose(text, start, d)
		if end < 0 || end == start {
			// "$$" with no closer must not fall through to a single "$" match
			if d.open == "$$" {
				return delimiter{}, "", 0, false
			}
			continue
		}
		return d, text[start:end], end + len(d.close), true
	}
	return delimiter{}, "", 0, false
}

func findClose(text string, from int, d delimiter) int {
	for j := from; j < len(text); j++ {
		if text[j] == '\\' && d.close == "$" || text[j] == '\\' && d.close == "$$" {
			j++
			continue
		}
		if d.close == "$" && text[j] == '$' {
			return j
		}
		if strings.HasPrefix(text[j:], d.close) {
			return j
		}
	}
	return -1
}

// Join rebuilds the original text from segments.
func Join(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		if s.Kind == Math {
			b.WriteString(s.Open)
			b.WriteString(s.Content)
			b.WriteString(s.Close)
			continue
		}
		b.WriteString(s.Content)
	}
	return b.String()
}
