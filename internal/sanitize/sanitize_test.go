package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTextSignatureSalutation(t *testing.T) {
	body, sig := ExtractTextSignature("Hello team\n\nBest regards,\nJane")
	assert.Equal(t, "Hello team", body)
	assert.True(t, strings.HasPrefix(sig, "Best regards,"))
	assert.Equal(t, "Best regards,\nJane", sig)
}

func TestExtractTextSignatureDelimiters(t *testing.T) {
	body, sig := ExtractTextSignature("Please see attached.\n-- \nJohn Smith\nACME Corp")
	assert.Equal(t, "Please see attached.", body)
	assert.Equal(t, "-- \nJohn Smith\nACME Corp", sig)

	body, sig = ExtractTextSignature("On my way\r\nSent from my iPhone")
	assert.Equal(t, "On my way", body)
	assert.Equal(t, "Sent from my iPhone", sig)

	body, sig = ExtractTextSignature("Thanks for the quick turnaround on the contract, we will sign today.\nMore details soon.")
	assert.Equal(t, "Thanks for the quick turnaround on the contract, we will sign today.\nMore details soon.", body)
	assert.Empty(t, sig)
}

func TestExtractTextSignatureContactTail(t *testing.T) {
	text := strings.Join([]string{
		"The deployment finished without errors and all services are healthy again after the restart.",
		"I will keep monitoring the dashboards for the rest of the afternoon and report anything odd.",
		"Let me know if the numbers on your side look different from what we saw this morning.",
		"",
		"Jane Doe",
		"Ops Lead",
		"jane@example.com",
	}, "\n")

	body, sig := ExtractTextSignature(text)
	assert.True(t, strings.HasSuffix(body, "this morning."))
	assert.Equal(t, "Jane Doe\nOps Lead\njane@example.com", sig)
}

func TestExtractTextSignatureNone(t *testing.T) {
	body, sig := ExtractTextSignature("Just one line")
	assert.Equal(t, "Just one line", body)
	assert.Empty(t, sig)
}

func TestStripTextReply(t *testing.T) {
	cases := map[string]string{
		"wrote":        "Sounds good.\n\nOn Mon, Jan 1, 2024 at 10:00 AM John <john@example.com> wrote:\n> earlier",
		"wrapped":      "Sounds good.\n\nOn Mon, Jan 1, 2024 at 10:00 AM John Smith\n<john@example.com> wrote:\n> earlier",
		"original":     "Sounds good.\n-----Original Message-----\nFrom: John",
		"forwarded":    "Sounds good.\n---------- Forwarded message ----------\nFrom: John",
		"outlook":      "Sounds good.\n\nFrom: John Smith <john@example.com>\nSent: Monday, January 1, 2024 10:00 AM\nTo: Team\nSubject: Plan",
		"mobile":       "Sounds good.\nSent from my Android phone",
		"iso":          "Sounds good.\n2024-01-01 10:00 GMT+01:00 John <john@example.com>:\nearlier",
		"quote marker": "Sounds good.\n> earlier text\n> more",
	}
	for name, in := range cases {
		assert.Equal(t, "Sounds good.", StripTextReply(in), name)
	}

	assert.Equal(t, "No history here", StripTextReply("  No history here \n"))
	assert.Equal(t, "> only quoted", StripTextReply("> only quoted"))
	assert.Equal(t, "To: do list\nbuy milk", StripTextReply("To: do list\nbuy milk"))
}

func TestStripHTMLReply(t *testing.T) {
	cases := map[string]string{
		"gmail":      `<div dir="ltr">Looks good</div><br><div class="gmail_quote"><div>On Mon wrote:</div><blockquote>old</blockquote></div>`,
		"blockquote": `<div dir="ltr">Looks good</div><blockquote type="cite">old</blockquote>`,
		"outlook":    `<div dir="ltr">Looks good</div><br/><div id="divRplyFwdMsg"><b>From:</b> John</div>`,
		"yahoo":      `<div dir="ltr">Looks good</div><div class="yahoo_quoted">old</div>`,
		"cite":       `<div dir="ltr">Looks good</div><div type="cite">old</div>`,
		"rule":       `<div dir="ltr">Looks good</div><br><hr><b>From:</b> John`,
	}
	for name, in := range cases {
		assert.Equal(t, `<div dir="ltr">Looks good</div>`, StripHTMLReply(in), name)
	}

	assert.Equal(t, "<p>plain</p>", StripHTMLReply("<p>plain</p><br><br />&nbsp;\n"))
	assert.Equal(t, "<blockquote>all quoted</blockquote>", StripHTMLReply("<blockquote>all quoted</blockquote>"))
}

func TestExtractHTMLSignature(t *testing.T) {
	body, sig := ExtractHTMLSignature(`<div>Hi all</div><div class="gmail_signature" data-smartmail="gmail_signature">Jane<br>ACME</div>`)
	assert.Equal(t, "<div>Hi all</div>", body)
	assert.True(t, strings.HasPrefix(sig, `<div class="gmail_signature"`))

	body, sig = ExtractHTMLSignature(`<p>Hi all</p><br><div id="Signature">Jane</div>`)
	assert.Equal(t, "<p>Hi all</p>", body)
	assert.Equal(t, `<div id="Signature">Jane</div>`, sig)

	body, sig = ExtractHTMLSignature(`<p>Hi all</p><p>-- </p><p>Jane</p>`)
	assert.Equal(t, "<p>Hi all</p><p>", body)
	assert.Equal(t, "-- </p><p>Jane</p>", sig)

	body, sig = ExtractHTMLSignature(`<p>No signature</p>`)
	assert.Equal(t, "<p>No signature</p>", body)
	assert.Empty(t, sig)
}

func TestClean(t *testing.T) {
	r := Clean(
		"Can you check the invoice?\n\nThanks,\nBob\n\nOn Tue, Bob wrote:\n> old",
		`<div>Can you check the invoice?</div><div class="gmail_signature">Bob</div><div class="gmail_quote">old</div>`,
	)
	assert.Equal(t, "Can you check the invoice?", r.Text)
	assert.Equal(t, "Thanks,\nBob", r.TextSignature)
	assert.Equal(t, "<div>Can you check the invoice?</div>", r.HTML)
	assert.Equal(t, `<div class="gmail_signature">Bob</div>`, r.HTMLSignature)

	assert.Equal(t, Result{}, Clean("", ""))
}
