package sanitize

// Result is a sanitized body pair with the signatures that were cut off.
type Result struct {
	Text          string
	HTML          string
	TextSignature string
	HTMLSignature string
}

// Clean strips quoted history and then signatures from both bodies.
func Clean(text, html string) Result {
	var r Result
	if text != "" {
		r.Text, r.TextSignature = ExtractTextSignature(StripTextReply(text))
	}
	if html != "" {
		r.HTML, r.HTMLSignature = ExtractHTMLSignature(StripHTMLReply(html))
	}
	return r
}
