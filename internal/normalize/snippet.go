package normalize

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// DefaultSnippetLength is the preview length used when none is given.
const DefaultSnippetLength = 200

// Snippet builds a single-line preview. Plaintext is preferred; HTML is only
// used when the plaintext body is empty.
func Snippet(text, htmlBody string, max int) string {
	if max <= 0 {
		max = DefaultSnippetLength
	}

	src := text
	if strings.TrimSpace(src) == "" {
		src = HTMLToText(htmlBody)
	}

	src = strings.Join(strings.Fields(src), " ")
	if utf8.RuneCountInString(src) <= max {
		return src
	}

	runes := []rune(src)
	cut := strings.TrimRight(string(runes[:max]), " ")
	return cut + "..."
}

// HTMLToText extracts visible text from an HTML fragment. Script and style
// contents are dropped, block elements become line breaks.
func HTMLToText(src string) string {
	if src == "" {
		return ""
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(src))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a tokenizer error; either way the text so far is all we get.
			return strings.TrimSpace(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, _ := z.TagName()
			switch string(tn) {
			case "script", "style", "head":
				if tt == html.StartTagToken {
					skip++
				}
			case "br", "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			tn, _ := z.TagName()
			switch string(tn) {
			case "script", "style", "head":
				if skip > 0 {
					skip--
				}
			}
		}
	}
}
