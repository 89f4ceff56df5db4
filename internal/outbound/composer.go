package outbound

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"task-inbox-go/internal/model"
	"task-inbox-go/internal/normalize"
)

// DefaultAutoReplyTemplate is used when an inbox enables auto-reply without
// a template of its own.
const DefaultAutoReplyTemplate = `<p>Hi {{sender_name}},</p><p>Thanks for your message "{{subject}}". ` +
	`It has been received by {{inbox_name}} and we will follow up soon.</p>`

// TransportProvider resolves the transport for an account.
type TransportProvider interface {
	ForAccount(ctx context.Context, account *model.EmailAccount) (Transport, error)
}

// ReplyRequest is a reply to one stored inbound message.
type ReplyRequest struct {
	Inbox    *model.ProjectInbox
	Account  *model.EmailAccount
	Original *model.InboxMessage
	HTML     string
}

// ReplyResult is what the caller records about a sent reply.
type ReplyResult struct {
	MessageID  string
	Recipients []string
}

// Composer builds threaded replies.
type Composer struct {
	transports TransportProvider
	domain     string
	fromName   string
	now        func() time.Time
}

func NewComposer(transports TransportProvider, messageIDDomain, fromName string) *Composer {
	return &Composer{
		transports: transports,
		domain:     messageIDDomain,
		fromName:   fromName,
		now:        time.Now,
	}
}

// Reply sends req.HTML plus the inbox signature to the original sender,
// threaded under the original message.
func (c *Composer) Reply(ctx context.Context, req ReplyRequest) (ReplyResult, error) {
	if req.Inbox == nil || req.Account == nil || req.Original == nil {
		return ReplyResult{}, errors.New("reply requires inbox, account and original message")
	}
	orig := req.Original
	if orig.FromEmail == "" {
		return ReplyResult{}, fmt.Errorf("message %d has no sender", orig.ID)
	}

	body := req.HTML
	if req.Inbox.Signature != "" {
		body += "<br><br>" + req.Inbox.Signature
	}

	refs := make([]string, 0, len(orig.References)+1)
	refs = append(refs, orig.References...)
	if orig.MessageID != "" {
		refs = append(refs, orig.MessageID)
	}

	now := c.now()
	from := c.sender(req.Inbox, req.Account)
	domain := c.domain
	if domain == "" {
		domain = normalize.Domain(from.Email)
	}
	env := Envelope{
		From:       from,
		To:         []normalize.Address{orig.From()},
		Subject:    ReplySubject(orig.Subject),
		HTML:       body,
		InReplyTo:  orig.MessageID,
		References: refs,
		MessageID:  NewMessageID(domain, now),
		Date:       now,
	}

	transport, err := c.transports.ForAccount(ctx, req.Account)
	if err != nil {
		return ReplyResult{}, err
	}
	res, err := transport.Send(ctx, env)
	if err != nil {
		return ReplyResult{}, err
	}

	id := res.MessageID
	if id == "" {
		id = env.MessageID
	}
	return ReplyResult{MessageID: id, Recipients: env.Recipients()}, nil
}

func (c *Composer) sender(inbox *model.ProjectInbox, account *model.EmailAccount) normalize.Address {
	addr := normalize.Address{Email: account.EmailAddress, Name: account.DisplayName}
	if addr.Email == "" {
		addr.Email = inbox.EmailAddress
	}
	if addr.Name == "" {
		addr.Name = inbox.Name
	}
	if addr.Name == "" {
		addr.Name = c.fromName
	}
	return addr
}

// AutoReply renders template for msg and sends it as a reply.
func (c *Composer) AutoReply(ctx context.Context, inbox *model.ProjectInbox, account *model.EmailAccount, msg *model.InboxMessage, template string) (ReplyResult, error) {
	return c.Reply(ctx, ReplyRequest{
		Inbox:    inbox,
		Account:  account,
		Original: msg,
		HTML:     RenderTemplate(template, inbox, msg),
	})
}

// RenderTemplate fills {{subject}}, {{sender_name}}, {{sender_email}} and
// {{inbox_name}}. Values are HTML-escaped.
func RenderTemplate(template string, inbox *model.ProjectInbox, msg *model.InboxMessage) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultAutoReplyTemplate
	}
	from := msg.From()
	senderName := from.DisplayName()
	inboxName := inbox.Name
	if inboxName == "" {
		inboxName = inbox.EmailAddress
	}
	r := strings.NewReplacer(
		"{{subject}}", html.EscapeString(msg.Subject),
		"{{sender_name}}", html.EscapeString(senderName),
		"{{sender_email}}", html.EscapeString(from.Email),
		"{{inbox_name}}", html.EscapeString(inboxName),
	)
	return r.Replace(template)
}
