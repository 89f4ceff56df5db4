// Package outbound composes replies to inbound mail and hands them to the
// account's mail transport.
package outbound

import (
	"bytes"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"task-inbox-go/internal/normalize"
	"task-inbox-go/internal/thread"
)

// NewMessageID returns an id of the form <{epoch-millis}.{base36}@{domain}>.
func NewMessageID(domain string, now time.Time) string {
	return fmt.Sprintf("<%d.%s@%s>", now.UnixMilli(), strconv.FormatInt(rand.Int63(), 36), domain)
}

// Envelope is a fully addressed outgoing message.
type Envelope struct {
	From       normalize.Address
	To         []normalize.Address
	Cc         []normalize.Address
	Subject    string
	HTML       string
	InReplyTo  string
	References []string
	MessageID  string
	Date       time.Time
}

// Recipients lists every To and Cc address.
func (e Envelope) Recipients() []string {
	return append(normalize.Emails(e.To), normalize.Emails(e.Cc)...)
}

// SendResult reports the id the message went out with.
type SendResult struct {
	MessageID string
}

func mailAddresses(list []normalize.Address) []*mail.Address {
	out := make([]*mail.Address, 0, len(list))
	for _, a := range list {
		out = append(out, &mail.Address{Name: a.Name, Address: a.Email})
	}
	return out
}

// Build renders env as a multipart/alternative RFC 5322 message with a
// plaintext rendition of the HTML body.
func Build(env Envelope) ([]byte, error) {
	var h mail.Header
	date := env.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	h.SetAddressList("From", mailAddresses([]normalize.Address{env.From}))
	h.SetAddressList("To", mailAddresses(env.To))
	if len(env.Cc) > 0 {
		h.SetAddressList("Cc", mailAddresses(env.Cc))
	}
	h.SetSubject(env.Subject)
	if env.MessageID != "" {
		h.SetMessageID(thread.NormalizeID(env.MessageID))
	}
	if id := thread.NormalizeID(env.InReplyTo); id != "" {
		h.SetMsgIDList("In-Reply-To", []string{id})
	}
	if refs := thread.NormalizeReferences(env.References); len(refs) > 0 {
		h.SetMsgIDList("References", refs)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline writer: %w", err)
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", normalize.HTMLToText(env.HTML)},
		{"text/html", env.HTML},
	}
	for _, p := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		w, err := tw.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s part: %w", p.contentType, err)
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, fmt.Errorf("failed to write %s part: %w", p.contentType, err)
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReplySubject prefixes "Re: " unless the subject already carries it.
func ReplySubject(subject string) string {
	s := strings.TrimSpace(subject)
	if len(s) >= 3 && strings.EqualFold(s[:3], "re:") {
		return s
	}
	if s == "" {
		return "Re: (no subject)"
	}
	return "Re: " + s
}
