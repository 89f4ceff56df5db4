package fetcher

import (
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"task-inbox-go/internal/normalize"
	"task-inbox-go/internal/thread"
)

// ParseMessage reads an RFC 5322 message. Unknown charsets are tolerated;
// structural errors are returned.
func ParseMessage(uid uint32, r io.Reader) (RawMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return RawMessage{}, fmt.Errorf("failed to read message: %w", err)
	}
	if mr == nil {
		return RawMessage{}, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	raw := RawMessage{
		UID:     uid,
		Headers: make(map[string][]string),
	}

	fields := h.Fields()
	for fields.Next() {
		raw.Headers[fields.Key()] = append(raw.Headers[fields.Key()], fields.Value())
	}

	raw.MessageID = thread.NormalizeID(h.Get("Message-Id"))
	if id, err := h.MessageID(); err == nil && id != "" {
		raw.MessageID = id
	}
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		raw.InReplyTo = ids[0]
	} else {
		raw.InReplyTo = thread.NormalizeID(h.Get("In-Reply-To"))
	}
	if ids, err := h.MsgIDList("References"); err == nil && len(ids) > 0 {
		raw.References = ids
	} else {
		raw.References = thread.NormalizeReferences(h.Get("References"))
	}

	raw.Subject, err = h.Subject()
	if err != nil {
		raw.Subject = h.Get("Subject")
	}
	if date, err := h.Date(); err == nil {
		raw.Date = date
	}

	raw.From = firstAddress(addressList(h, "From"))
	raw.To = addressList(h, "To")
	raw.Cc = addressList(h, "Cc")
	raw.Bcc = addressList(h, "Bcc")

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return RawMessage{}, fmt.Errorf("failed to read part: %w", err)
		}

		switch ph := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			body, err := io.ReadAll(p.Body)
			if err != nil {
				return RawMessage{}, fmt.Errorf("failed to read part body: %w", err)
			}
			switch {
			case ct == "text/plain" && raw.TextBody == "":
				raw.TextBody = string(body)
			case ct == "text/html" && raw.HTMLBody == "":
				raw.HTMLBody = string(body)
			case ct != "text/plain" && ct != "text/html":
				raw.Attachments = append(raw.Attachments, attachment(ph.Header, ct, inlineName(ph.Header, ct), body))
			}
		case *mail.AttachmentHeader:
			ct, _, _ := ph.ContentType()
			name, _ := ph.Filename()
			body, err := io.ReadAll(p.Body)
			if err != nil {
				return RawMessage{}, fmt.Errorf("failed to read attachment: %w", err)
			}
			raw.Attachments = append(raw.Attachments, attachment(ph.Header, ct, name, body))
		}
	}

	return raw, nil
}

func attachment(h message.Header, ct, name string, body []byte) RawAttachment {
	if ct == "" {
		ct = "application/octet-stream"
	}
	if name == "" {
		name = "attachment"
	}
	return RawAttachment{
		Filename:  name,
		MimeType:  ct,
		Size:      int64(len(body)),
		ContentID: thread.NormalizeID(h.Get("Content-Id")),
		Data:      body,
	}
}

// inlineName picks a file name for an inline non-text part such as an
// embedded image.
func inlineName(h message.Header, ct string) string {
	if _, params, err := h.ContentDisposition(); err == nil && params["filename"] != "" {
		return params["filename"]
	}
	if _, params, err := h.ContentType(); err == nil && params["name"] != "" {
		return params["name"]
	}
	ext := ""
	if exts, _ := mime.ExtensionsByType(ct); len(exts) > 0 {
		ext = exts[0]
	}
	return "inline" + ext
}

func addressList(h mail.Header, key string) []normalize.Address {
	list, err := h.AddressList(key)
	if err != nil {
		return normalize.ParseAddressList(h.Get(key))
	}
	out := make([]normalize.Address, 0, len(list))
	for _, a := range list {
		if a.Address == "" {
			continue
		}
		out = append(out, normalize.Address{Email: strings.ToLower(a.Address), Name: a.Name})
	}
	return out
}

func firstAddress(list []normalize.Address) normalize.Address {
	if len(list) == 0 {
		return normalize.Address{}
	}
	return list[0]
}

// receivedAt picks the best timestamp for ordering: the Date header, else
// the server's internal date.
func receivedAt(raw RawMessage, internal time.Time) time.Time {
	if !raw.Date.IsZero() {
		return raw.Date
	}
	return internal
}

func normalizeEnvelopeID(v string) string {
	return thread.NormalizeID(v)
}
