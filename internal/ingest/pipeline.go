// Package ingest turns fetched messages into stored inbox messages, applies
// the inbox rules and links the result to tasks.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"task-inbox-go/internal/correlate"
	"task-inbox-go/internal/db"
	"task-inbox-go/internal/fetcher"
	"task-inbox-go/internal/metrics"
	"task-inbox-go/internal/model"
	"task-inbox-go/internal/normalize"
	"task-inbox-go/internal/outbound"
	"task-inbox-go/internal/repository"
	"task-inbox-go/internal/rules"
	"task-inbox-go/internal/sanitize"
	"task-inbox-go/internal/storage"
	"task-inbox-go/internal/thread"
)

// ErrInvalidSource is returned when a message arrives without its inbox or
// account.
var ErrInvalidSource = errors.New("source requires inbox and account")

// Status is the terminal state of one Process call.
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusIngested  Status = "ingested"
	StatusIgnored   Status = "ignored"
	StatusConverted Status = "converted"
)

// Source is the mailbox a message was fetched from.
type Source struct {
	Inbox   *model.ProjectInbox
	Account *model.EmailAccount
	// MarkRead flags the remote message as seen. Nil skips the step.
	MarkRead func(ctx context.Context, uid uint32) error
}

// Result describes what happened to one message.
type Result struct {
	Status         Status
	MessageID      string
	InboxMessageID uint
	TaskID         *uint
	CommentID      *uint
	TaskCreated    bool
	AutoReplied    bool
}

// Correlator links a pending message to a task.
type Correlator interface {
	Correlate(ctx context.Context, inbox *model.ProjectInbox, msg *model.InboxMessage, opts correlate.Options) (correlate.Outcome, error)
}

// Replier sends templated auto-replies.
type Replier interface {
	AutoReply(ctx context.Context, inbox *model.ProjectInbox, account *model.EmailAccount, msg *model.InboxMessage, template string) (outbound.ReplyResult, error)
}

// Pipeline processes one message at a time. Callers feed messages of one
// account sequentially in chronological order.
type Pipeline struct {
	repo       *repository.Repository
	blobs      storage.Store
	correlator Correlator
	replier    Replier
	metrics    *metrics.Metrics
	domain     string
	now        func() time.Time
}

// NewPipeline wires the stages. replier may be nil to disable auto-replies.
func NewPipeline(repo *repository.Repository, blobs storage.Store, correlator Correlator, replier Replier, m *metrics.Metrics, messageIDDomain string) *Pipeline {
	return &Pipeline{
		repo:       repo,
		blobs:      blobs,
		correlator: correlator,
		replier:    replier,
		metrics:    m,
		domain:     messageIDDomain,
		now:        time.Now,
	}
}

// Process runs dedup, persist, attachments, rules, correlation, auto-reply
// and mark-read in that order. Errors returned after persistence leave the
// stored row in place. Cancelling ctx does not interrupt a message once
// processing has started.
func (p *Pipeline) Process(ctx context.Context, src Source, raw fetcher.RawMessage) (Result, error) {
	if src.Inbox == nil || src.Account == nil {
		return Result{}, ErrInvalidSource
	}
	ctx = context.WithoutCancel(ctx)

	messageID := thread.NormalizeID(raw.MessageID)
	if messageID == "" {
		messageID = p.syntheticID(src, raw)
	}
	res := Result{MessageID: messageID}
	log := logrus.WithFields(logrus.Fields{
		"message_id": messageID,
		"inbox_id":   src.Inbox.ID,
		"account_id": src.Account.ID,
	})

	exists, err := p.repo.MessageExists(ctx, messageID)
	if err != nil {
		return res, err
	}
	if exists {
		log.Debug("Message already ingested, skipping")
		p.metrics.DuplicatesSkipped.Inc()
		res.Status = StatusSkipped
		return res, nil
	}

	msg := p.build(src, raw, messageID)
	if err := p.repo.CreateMessage(ctx, msg); err != nil {
		if db.IsDuplicate(err) {
			log.Debug("Message ingested concurrently, skipping")
			p.metrics.DuplicatesSkipped.Inc()
			res.Status = StatusSkipped
			return res, nil
		}
		return res, fmt.Errorf("failed to persist message: %w", err)
	}
	res.InboxMessageID = msg.ID
	p.metrics.MessagesIngested.Inc()
	log = log.WithField("inbox_message_id", msg.ID)

	p.storeAttachments(ctx, src, msg, raw.Attachments, log)

	var ruleReplied bool
	if msg.Status == model.MessageStatusPending {
		outcome, err := p.applyRules(ctx, src, msg)
		if err != nil {
			return p.finish(res, msg), fmt.Errorf("failed to apply rules: %w", err)
		}
		ruleReplied = outcome.AutoReplied
	}

	if msg.Status == model.MessageStatusPending && src.Inbox.AutoCreateTask {
		out, err := p.correlator.Correlate(ctx, src.Inbox, msg, correlate.Options{})
		if err != nil {
			return p.finish(res, msg), fmt.Errorf("failed to correlate message: %w", err)
		}
		if out.Created {
			p.metrics.TasksCreated.Inc()
			res.TaskCreated = true
		}
		if out.Comment != nil {
			p.metrics.CommentsCreated.Inc()
			res.CommentID = &out.Comment.ID
		}
	}

	if p.shouldAutoReply(src, msg, ruleReplied) {
		bestEffort("auto_reply", log, func() error {
			if _, err := p.replier.AutoReply(ctx, src.Inbox, src.Account, msg, src.Inbox.AutoReplyTemplate); err != nil {
				return err
			}
			p.metrics.AutoRepliesSent.Inc()
			msg.AutoReplied = true
			return p.repo.MarkMessageAutoReplied(ctx, msg.ID)
		})
	}
	res.AutoReplied = msg.AutoReplied

	if src.MarkRead != nil && raw.UID != 0 {
		bestEffort("mark_read", log, func() error {
			return src.MarkRead(ctx, raw.UID)
		})
	}

	return p.finish(res, msg), nil
}

func (p *Pipeline) finish(res Result, msg *model.InboxMessage) Result {
	switch msg.Status {
	case model.MessageStatusConverted:
		res.Status = StatusConverted
	case model.MessageStatusIgnored:
		res.Status = StatusIgnored
	default:
		res.Status = StatusIngested
	}
	res.TaskID = msg.TaskID
	res.AutoReplied = msg.AutoReplied
	return res
}

// build normalizes and sanitizes raw into a pending row.
func (p *Pipeline) build(src Source, raw fetcher.RawMessage, messageID string) *model.InboxMessage {
	clean := sanitize.Clean(raw.TextBody, raw.HTMLBody)
	refs := thread.NormalizeReferences(raw.References)
	inReplyTo := thread.NormalizeID(raw.InReplyTo)

	received := raw.Date
	if received.IsZero() {
		received = p.now()
	}

	return &model.InboxMessage{
		MessageID: messageID,
		InboxID:   src.Inbox.ID,
		ProjectID: src.Inbox.ProjectID,
		AccountID: src.Account.ID,
		IMAPUID:   raw.UID,
		ThreadID: thread.Resolve(thread.Message{
			MessageID:  messageID,
			InReplyTo:  inReplyTo,
			References: refs,
		}),
		InReplyTo:     inReplyTo,
		References:    refs,
		Subject:       strings.TrimSpace(raw.Subject),
		FromEmail:     raw.From.Email,
		FromName:      raw.From.Name,
		To:            raw.To,
		Cc:            raw.Cc,
		Bcc:           raw.Bcc,
		TextBody:      clean.Text,
		HTMLBody:      clean.HTML,
		Snippet:       normalize.Snippet(clean.Text, clean.HTML, normalize.DefaultSnippetLength),
		TextSignature: clean.TextSignature,
		HTMLSignature: clean.HTMLSignature,
		Headers:       raw.Headers,
		Status:        model.MessageStatusPending,
		ReceivedAt:    received,
	}
}

// syntheticID derives a stable id for messages without a Message-Id header
// so that refetching them still deduplicates.
func (p *Pipeline) syntheticID(src Source, raw fetcher.RawMessage) string {
	h := sha256.New()
	for _, part := range []string{
		strconv.FormatUint(uint64(src.Account.ID), 10),
		strconv.FormatUint(uint64(raw.UID), 10),
		raw.From.Email,
		raw.Subject,
		raw.Date.UTC().Format(time.RFC3339),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	id := "generated-" + hex.EncodeToString(h.Sum(nil))[:32] + "@" + p.domain
	logrus.WithFields(logrus.Fields{"account_id": src.Account.ID, "uid": raw.UID, "message_id": id}).
		Warn("Message has no Message-Id header, using synthesized id")
	return id
}

func (p *Pipeline) storeAttachments(ctx context.Context, src Source, msg *model.InboxMessage, atts []fetcher.RawAttachment, log *logrus.Entry) {
	for i := range atts {
		att := atts[i]
		ok := bestEffort("attachment", log.WithField("filename", att.Filename), func() error {
			hint := fmt.Sprintf("inbox/%d/%d/%s", src.Inbox.ID, msg.ID, att.Filename)
			obj, err := p.blobs.Save(ctx, att.Data, hint)
			if err != nil {
				return err
			}
			size := obj.Size
			if size == 0 {
				size = att.Size
			}
			row := &model.MessageAttachment{
				InboxMessageID: msg.ID,
				Filename:       att.Filename,
				MimeType:       att.MimeType,
				Size:           size,
				ContentID:      att.ContentID,
				StorageKey:     obj.Key,
				URL:            obj.URL,
			}
			if err := p.repo.CreateMessageAttachment(ctx, row); err != nil {
				return err
			}
			msg.Attachments = append(msg.Attachments, *row)
			return nil
		})
		if !ok {
			p.metrics.AttachmentErrors.Inc()
		}
	}
}

func (p *Pipeline) applyRules(ctx context.Context, src Source, msg *model.InboxMessage) (rules.Outcome, error) {
	list, err := p.repo.ListEnabledRules(ctx, src.Inbox.ID)
	if err != nil {
		return rules.Outcome{}, err
	}
	if len(list) == 0 {
		return rules.Outcome{}, nil
	}

	var replier rules.AutoReplier
	if p.replier != nil {
		replier = ruleReplier{p: p, src: src}
	}
	engine := rules.NewEngine(p.repo, replier)
	engine.OnMatch(p.metrics.RuleMatches.Inc)
	return engine.Apply(ctx, msg, list)
}

// shouldAutoReply gates the inbox-level auto-reply: never for spam, never
// after a rule replied, never to the inbox itself or to automated mail.
func (p *Pipeline) shouldAutoReply(src Source, msg *model.InboxMessage, ruleReplied bool) bool {
	if p.replier == nil || !src.Inbox.AutoReplyEnabled {
		return false
	}
	if ruleReplied || msg.AutoReplied || msg.IsSpam || msg.FromEmail == "" {
		return false
	}
	if strings.EqualFold(msg.FromEmail, src.Inbox.EmailAddress) || strings.EqualFold(msg.FromEmail, src.Account.EmailAddress) {
		return false
	}
	return !autoSubmitted(msg.Headers)
}

// autoSubmitted reports RFC 3834 auto-generated mail and bulk precedence.
func autoSubmitted(headers map[string][]string) bool {
	for key, values := range headers {
		for _, v := range values {
			v = strings.ToLower(strings.TrimSpace(v))
			switch strings.ToLower(key) {
			case "auto-submitted":
				if v != "" && v != "no" {
					return true
				}
			case "precedence":
				if v == "bulk" || v == "junk" || v == "list" || v == "auto_reply" {
					return true
				}
			}
		}
	}
	return false
}

type ruleReplier struct {
	p   *Pipeline
	src Source
}

func (r ruleReplier) AutoReply(ctx context.Context, msg *model.InboxMessage, template string) error {
	if _, err := r.p.replier.AutoReply(ctx, r.src.Inbox, r.src.Account, msg, template); err != nil {
		return err
	}
	r.p.metrics.AutoRepliesSent.Inc()
	return nil
}

// bestEffort runs a side effect whose failure must not undo earlier stages.
// It logs the error and reports whether fn succeeded.
func bestEffort(step string, log *logrus.Entry, fn func() error) bool {
	if err := fn(); err != nil {
		log.WithError(err).WithField("step", step).Warn("Best-effort step failed")
		return false
	}
	return true
}
