package assembler

import (
	"strings"

	"golang.org/x/net/html"
)

// markers holds byte offsets into an entry document. -1 means not found.
type markers struct {
	complete  bool
	headOpen  int // just past the first <head ...> start tag
	headClose int // start of the first </head>
	bodyClose int // start of the last </body>
}

// scan walks markup with the HTML tokenizer so tags inside comments,
// scripts and attribute values never count as markers.
func scan(markup string) markers {
	m := markers{headOpen: -1, headClose: -1, bodyClose: -1}
	z := html.NewTokenizer(strings.NewReader(markup))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return m
		}
		n := len(z.Raw())
		switch tt {
		case html.DoctypeToken:
			m.complete = true
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "html":
				m.complete = true
			case "head":
				if m.headOpen < 0 {
					m.headOpen = offset + n
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "head":
				if m.headClose < 0 {
					m.headClose = offset
				}
			case "body":
				m.bodyClose = offset
			}
		}
		offset += n
	}
}

// IsCompleteDocument reports whether markup declares a doctype or an <html>
// element rather than being a bare fragment.
func IsCompleteDocument(markup string) bool {
	return scan(markup).complete
}
