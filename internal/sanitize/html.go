package sanitize

import (
	"regexp"
	"strings"
)

// Quote containers written by common clients, matched case-insensitively.
var htmlQuoteMarkers = []string{
	`<div class="gmail_quote`,
	`<div class="gmail_extra"`,
	`<div class="moz-cite-prefix"`,
	`<div class="protonmail_quote"`,
	`<div class="yahoo_quoted"`,
	`<div id="yahoo_quoted`,
	`<div id="appendonsend"`,
	`<div id="divrplyfwdmsg"`,
	`<div style="border:none;border-top:solid #e1e1e1`,
	`<div type="cite"`,
	`<blockquote`,
	`<hr`,
}

var (
	htmlSignatureContainer = regexp.MustCompile(`(?i)<(?:div|table|p|span)\b[^>]*\b(?:class|id)\s*=\s*["'][^"']*\b(?:gmail_signature|moz-signature|signature)\b`)
	htmlSignatureDivider   = regexp.MustCompile(`(?i)(?:<br\s*/?>|<div[^>]*>|<p[^>]*>|</div>|</p>)\s*(--|&#45;&#45;|&minus;&minus;)(?:\s|&nbsp;)*(?:<br\s*/?>|</div>|</p>)`)
	trailingBreaks         = regexp.MustCompile(`(?i)(?:\s|&nbsp;|<br\s*/?>|<div>\s*(?:<br\s*/?>)?\s*</div>|<p>\s*</p>)+$`)
)

// StripHTMLReply truncates the HTML at the first known quote container and
// trims trailing breaks.
func StripHTMLReply(html string) string {
	lower := strings.ToLower(html)
	cut := -1
	for _, m := range htmlQuoteMarkers {
		if i := strings.Index(lower, m); i >= 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut < 0 {
		return trimTrailingBreaks(html)
	}
	if stripped := trimTrailingBreaks(html[:cut]); stripped != "" {
		return stripped
	}
	return trimTrailingBreaks(html)
}

// ExtractHTMLSignature splits the HTML at the first signature container or
// "--" divider.
func ExtractHTMLSignature(html string) (body, signature string) {
	start := -1
	if loc := htmlSignatureContainer.FindStringIndex(html); loc != nil {
		start = loc[0]
	}
	if loc := htmlSignatureDivider.FindStringSubmatchIndex(html); loc != nil && (start < 0 || loc[2] < start) {
		start = loc[2]
	}
	if start <= 0 {
		return trimTrailingBreaks(html), ""
	}
	return trimTrailingBreaks(html[:start]), strings.TrimSpace(html[start:])
}

func trimTrailingBreaks(html string) string {
	return strings.TrimSpace(trailingBreaks.ReplaceAllString(html, ""))
}
