package normalize

import (
	"net/mail"
	"regexp"
	"strings"
)

// Address is a canonical mailbox: a lower-cased email plus an optional display name.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

var (
	angleAddr = regexp.MustCompile(`<([^<>\s]+@[^<>\s]+)>`)
	bareAddr  = regexp.MustCompile(`[A-Za-z0-9._%+\-']+@[A-Za-z0-9.\-]+`)
)

// ParseAddress turns a raw header value into an Address. It never fails: values
// the RFC parser rejects fall back to pattern extraction, and anything else is
// returned as a lower-cased trimmed string.
func ParseAddress(raw string) Address {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Address{}
	}

	if a, err := mail.ParseAddress(raw); err == nil {
		return Address{Email: canonicalEmail(a.Address), Name: strings.TrimSpace(a.Name)}
	}

	if m := angleAddr.FindStringSubmatchIndex(raw); m != nil {
		name := strings.Trim(strings.TrimSpace(raw[:m[0]]), `"'`)
		return Address{Email: canonicalEmail(raw[m[2]:m[3]]), Name: name}
	}

	if m := bareAddr.FindString(raw); m != "" {
		return Address{Email: canonicalEmail(m)}
	}

	return Address{Email: canonicalEmail(raw)}
}

// ParseAddressList splits a raw To/Cc style header into addresses, dropping
// entries that carry no email.
func ParseAddressList(raw string) []Address {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if list, err := mail.ParseAddressList(raw); err == nil {
		out := make([]Address, 0, len(list))
		for _, a := range list {
			if addr := canonicalEmail(a.Address); addr != "" {
				out = append(out, Address{Email: addr, Name: strings.TrimSpace(a.Name)})
			}
		}
		return out
	}

	var out []Address
	for _, part := range splitAddressList(raw) {
		if a := ParseAddress(part); a.Email != "" {
			out = append(out, a)
		}
	}
	return out
}

// splitAddressList splits on commas and semicolons that are not inside quotes
// or angle brackets.
func splitAddressList(raw string) []string {
	var (
		parts   []string
		current strings.Builder
		quoted  bool
		angle   int
	)
	for _, r := range raw {
		switch {
		case r == '"':
			quoted = !quoted
		case r == '<' && !quoted:
			angle++
		case r == '>' && !quoted && angle > 0:
			angle--
		case (r == ',' || r == ';') && !quoted && angle == 0:
			parts = append(parts, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(r)
	}
	parts = append(parts, current.String())
	return parts
}

func canonicalEmail(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), "<>"))
}

// Emails returns the email part of each address.
func Emails(list []Address) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		if a.Email != "" {
			out = append(out, a.Email)
		}
	}
	return out
}

// JoinEmails joins the addresses with commas, the form rule matching sees.
func JoinEmails(list []Address) string {
	return strings.Join(Emails(list), ",")
}

// Format renders the address as a header value.
func Format(a Address) string {
	if a.Name == "" {
		return a.Email
	}
	return (&mail.Address{Name: a.Name, Address: a.Email}).String()
}

// LocalPart returns the part of the email before the last @.
func LocalPart(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

// Domain returns the part of the email after the last @.
func Domain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}

// DisplayName returns the name, or the local part when no name is known.
func (a Address) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return LocalPart(a.Email)
}
