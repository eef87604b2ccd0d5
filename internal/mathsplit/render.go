package mathsplit

import (
	"errors"
	"fmt"
	"html"
)

// Renderer turns one math expression into display markup.
type Renderer interface {
	Render(content string, displayMode bool) (string, error)
}

// Rendered is a segment with its display output. Fallback marks math that failed
// to render and is shown as its raw expression instead.
type Rendered struct {
	Segment
	Output   string `json:"output"`
	Fallback bool   `json:"fallback,omitempty"`
}

// RenderAll renders every math segment. Failures never propagate: the segment
// falls back to the raw expression and the number of fallbacks is returned.
func RenderAll(r Renderer, segs []Segment) ([]Rendered, int) {
	out := make([]Rendered, 0, len(segs))
	fallbacks := 0
	for _, s := range segs {
		if s.Kind != Math || r == nil {
			out = append(out, Rendered{Segment: s, Output: s.Content})
			continue
		}
		rendered, err := safeRender(r, s)
		if err != nil {
			fallbacks++
			out = append(out, Rendered{Segment: s, Output: s.Content, Fallback: true})
			continue
		}
		out = append(out, Rendered{Segment: s, Output: rendered})
	}
	return out, fallbacks
}

func safeRender(r Renderer, s Segment) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("renderer panic: %v", p)
		}
	}()
	return r.Render(s.Content, s.DisplayMode)
}

// ErrUnbalancedBraces is returned by HTMLRenderer for malformed TeX groups.
var ErrUnbalancedBraces = errors.New("unbalanced braces in math expression")

// HTMLRenderer emits escaped spans that a client-side TeX engine picks up.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(content string, displayMode bool) (string, error) {
	depth := 0
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return "", ErrUnbalancedBraces
			}
		}
	}
	if depth != 0 {
		return "", ErrUnbalancedBraces
	}
	class := "math math-inline"
	if displayMode {
		class = "math math-display"
	}
	escaped := html.EscapeString(content)
	return fmt.Sprintf(`<span class="%s" data-tex="%s">%s</span>`, class, escaped, escaped), nil
}
