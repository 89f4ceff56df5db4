package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAddress(t *testing.T) {
	cases := []struct {
		raw  string
		want Address
	}{
		{"Jane Doe <Jane.Doe@Example.COM>", Address{Email: "jane.doe@example.com", Name: "Jane Doe"}},
		{"  bob@example.com ", Address{Email: "bob@example.com"}},
		{`"Support, Team" <support@example.com>`, Address{Email: "support@example.com", Name: "Support, Team"}},
		{"Broken Name (x) <weird@example.com", Address{Email: "weird@example.com"}},
		{"", Address{}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseAddress(tc.raw), tc.raw)
	}
}

func TestParseAddressListFallback(t *testing.T) {
	list := ParseAddressList(`a@example.com; "B, Person" <B@example.com>, not-an-address`)
	assert.Equal(t, []string{"a@example.com", "b@example.com", "not-an-address"}, Emails(list))
	assert.Equal(t, "B, Person", list[1].Name)

	list = ParseAddressList("Ann <ann@example.com>, carl@example.com")
	assert.Equal(t, "ann@example.com,carl@example.com", JoinEmails(list))
	assert.Nil(t, ParseAddressList("   "))
}

func TestFormatAndParts(t *testing.T) {
	assert.Equal(t, "bob@example.com", Format(Address{Email: "bob@example.com"}))
	assert.Equal(t, `"Bob" <bob@example.com>`, Format(Address{Email: "bob@example.com", Name: "Bob"}))
	assert.Equal(t, "bob", LocalPart("bob@example.com"))
	assert.Equal(t, "example.com", Domain("bob@example.com"))
	assert.Equal(t, "", Domain("bob"))
	assert.Equal(t, "bob", Address{Email: "bob@example.com"}.DisplayName())
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "hello world", Snippet("  hello\n\n  world ", "<p>ignored</p>", 0))
	assert.Equal(t, "Title Body & text", Snippet("", "<html><head><style>p{}</style></head><body><h1>Title</h1><p>Body &amp; text</p></body></html>", 0))

	long := strings.Repeat("ab ", 100)
	got := Snippet(long, "", 10)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len([]rune(got)), 13)

	assert.Equal(t, "héllo...", Snippet("héllo wörld", "", 5))
}

func TestHTMLToTextDropsScripts(t *testing.T) {
	got := HTMLToText(`<div>one</div><script>alert(1)</script><br/>two`)
	assert.Equal(t, "one\ntwo", got)
}
