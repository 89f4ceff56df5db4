// Package sanitize strips quoted replies and signature blocks from message
// bodies. Every function is a pure string transform.
package sanitize

import (
	"regexp"
	"strings"
)

// Reply separators. Each pattern marks where quoted history begins.
var textReplyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?ms)^[ \t]*On\s[^\n]{0,200}?(?:\n[^\n]{0,200}?)?wrote:[ \t]*$`),
	regexp.MustCompile(`(?mi)^[ \t]*-{2,}\s*Original Message\s*-{2,}`),
	regexp.MustCompile(`(?mi)^[ \t]*-{2,}\s*Forwarded Message\s*-{2,}`),
	regexp.MustCompile(`(?mi)^[ \t]*\*?From:\*?[ \t].*\n(?:[ \t]*\*?(?:Sent|To|Cc|Date|Subject):\*?[ \t].*(?:\n|$))+`),
	regexp.MustCompile(`(?mi)^[ \t]*Sent from my [^\n]+$`),
	regexp.MustCompile(`(?mi)^[ \t]*Get Outlook for (?:iOS|Android)[^\n]*$`),
	regexp.MustCompile(`(?m)^[ \t]*\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}[^\n]*:[ \t]*$`),
	regexp.MustCompile(`(?m)^>`),
}

var (
	salutations   = []string{"best", "regards", "kind regards", "warm regards", "sincerely", "thanks", "thank you", "cheers"}
	emailPattern  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern  = regexp.MustCompile(`(?:\+?\d[\d\s().\-]{7,}\d)`)
	mobileMarker  = regexp.MustCompile(`(?i)^sent from my\s`)
	maxSalutation = 30
)

// StripTextReply truncates the body at the earliest reply separator. A body
// that is nothing but quoted text is returned unchanged.
func StripTextReply(text string) string {
	text = normalizeNewlines(text)
	cut := -1
	for _, p := range textReplyPatterns {
		if loc := p.FindStringIndex(text); loc != nil && (cut < 0 || loc[0] < cut) {
			cut = loc[0]
		}
	}
	if cut < 0 {
		return strings.TrimSpace(text)
	}
	if stripped := strings.TrimSpace(text[:cut]); stripped != "" {
		return stripped
	}
	return strings.TrimSpace(text)
}

// ExtractTextSignature splits the body at the first signature line. The
// signature starts at a lone "--", a short closing salutation, or a "Sent
// from my" marker; failing that, at a dense contact-detail tail.
func ExtractTextSignature(text string) (body, signature string) {
	text = normalizeNewlines(text)
	lines := strings.Split(text, "\n")

	start := -1
	for i, line := range lines {
		if i > 0 && isSignatureLine(line) {
			start = i
			break
		}
	}
	if start < 0 {
		start = contactTail(lines)
	}
	if start <= 0 {
		return strings.TrimSpace(text), ""
	}

	body = strings.TrimSpace(strings.Join(lines[:start], "\n"))
	signature = strings.TrimSpace(strings.Join(lines[start:], "\n"))
	return body, signature
}

func isSignatureLine(line string) bool {
	if line == "-- " || strings.TrimSpace(line) == "--" {
		return true
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if mobileMarker.MatchString(trimmed) {
		return true
	}
	if len(trimmed) > maxSalutation {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, s := range salutations {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return false
}

// contactTail looks in the last 40% of the lines for a tail of short lines
// holding an email address or phone number. Returns -1 when none qualifies.
func contactTail(lines []string) int {
	n := len(lines)
	if n < 3 {
		return -1
	}
	from := n * 6 / 10
	if from < 1 {
		from = 1
	}
	for start := from; start < n; start++ {
		if strings.TrimSpace(lines[start]) == "" {
			continue
		}
		tail := lines[start:]
		if averageLineLength(tail) < 40 && hasContactDetail(tail) {
			return start
		}
	}
	return -1
}

func averageLineLength(lines []string) int {
	total, count := 0, 0
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			total += len(t)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / count
}

func hasContactDetail(lines []string) bool {
	for _, l := range lines {
		if emailPattern.MatchString(l) || phonePattern.MatchString(l) {
			return true
		}
	}
	return false
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}
