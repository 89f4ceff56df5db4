package correlate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"task-inbox-go/internal/db"
	"task-inbox-go/internal/model"
	"task-inbox-go/internal/repository"
	"task-inbox-go/internal/rules"
)

// ErrMissingInbox is returned when a message is correlated without its inbox.
var ErrMissingInbox = errors.New("inbox is required for correlation")

// Options adjust a single correlation.
type Options struct {
	// ActorID is the acting user of a manual conversion. It becomes the
	// reporter of a new task and the author of a comment.
	ActorID *uint
}

// Outcome is the task the message was linked to and, for replies, the
// comment it became.
type Outcome struct {
	Task     *model.Task
	Comment  *model.TaskComment
	Created  bool
	Strategy string
}

// Resolver links messages to tasks.
type Resolver struct {
	repo       *repository.Repository
	strategies []Strategy
	identities *Provisioner
}

func NewResolver(repo *repository.Repository, identities *Provisioner) *Resolver {
	return &Resolver{
		repo:       repo,
		strategies: DefaultStrategies(repo),
		identities: identities,
	}
}

// Correlate links msg to an existing task as a comment, or creates a task
// for it. The message is marked converted in the same transaction.
func (r *Resolver) Correlate(ctx context.Context, inbox *model.ProjectInbox, msg *model.InboxMessage, opts Options) (Outcome, error) {
	if inbox == nil {
		return Outcome{}, ErrMissingInbox
	}
	if msg.IsConverted && msg.TaskID != nil {
		task, err := r.repo.GetTask(ctx, *msg.TaskID)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Task: task, Strategy: "already_converted"}, nil
	}

	log := logrus.WithFields(logrus.Fields{"message_id": msg.MessageID, "inbox_id": inbox.ID})
	req := Request{
		ProjectID: inbox.ProjectID,
		InboxID:   inbox.ID,
		ThreadID:  msg.ThreadID,
		InReplyTo: msg.InReplyTo,
	}

	for _, s := range r.strategies {
		task, err := s.Lookup(ctx, req)
		if err != nil {
			return Outcome{}, fmt.Errorf("%s lookup: %w", s.Name(), err)
		}
		if task != nil {
			log.WithFields(logrus.Fields{"task_id": task.ID, "strategy": s.Name()}).Info("Message matched existing task")
			return r.comment(ctx, inbox, msg, task, opts, s.Name())
		}
	}

	out, err := r.createTask(ctx, inbox, msg, opts)
	if err == nil || !db.IsDuplicate(err) {
		return out, err
	}

	// a concurrent run created the thread's task first
	task, lerr := ThreadMatch{Repo: r.repo}.Lookup(ctx, req)
	if lerr != nil {
		return Outcome{}, lerr
	}
	if task == nil {
		return Outcome{}, fmt.Errorf("failed to create task: %w", err)
	}
	log.WithField("task_id", task.ID).Info("Task for thread created concurrently, adding comment")
	return r.comment(ctx, inbox, msg, task, opts, "thread_retry")
}

// Convert manually converts a stored message for userID.
func (r *Resolver) Convert(ctx context.Context, messageID, userID uint) (*model.Task, error) {
	msg, err := r.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	inbox, err := r.repo.GetInbox(ctx, msg.InboxID)
	if err != nil {
		return nil, err
	}
	out, err := r.Correlate(ctx, inbox, msg, Options{ActorID: &userID})
	if err != nil {
		return nil, err
	}
	return out.Task, nil
}

// author resolves the sender, falling back to the inbox's default author.
func (r *Resolver) author(ctx context.Context, inbox *model.ProjectInbox, msg *model.InboxMessage, opts Options) *uint {
	if opts.ActorID != nil {
		return opts.ActorID
	}
	if r.identities != nil && msg.FromEmail != "" {
		id, err := r.identities.FindOrProvision(ctx, msg.From(), inbox.ProjectID)
		if err == nil {
			return &id.UserID
		}
		logrus.WithError(err).WithField("message_id", msg.MessageID).Warn("Failed to resolve sender, using inbox default author")
	}
	return inbox.DefaultAuthorID
}

func (r *Resolver) createTask(ctx context.Context, inbox *model.ProjectInbox, msg *model.InboxMessage, opts Options) (Outcome, error) {
	results, err := r.repo.ListRuleResults(ctx, msg.ID)
	if err != nil {
		return Outcome{}, err
	}
	decision := rules.Aggregate(results)

	threadID := msg.ThreadID
	task := &model.Task{
		ProjectID:         inbox.ProjectID,
		Title:             title(msg.Subject),
		Description:       msg.Body(),
		EmailThreadID:     &threadID,
		AllowEmailReplies: true,
		ReporterID:        r.author(ctx, inbox, msg, opts),
		AssigneeID:        inbox.DefaultAssigneeID,
		Priority:          inbox.DefaultPriority,
		TaskType:          inbox.DefaultTaskType,
		Status:            inbox.DefaultStatus,
		Labels:            decision.Labels,
	}
	if decision.AssigneeID != nil {
		task.AssigneeID = decision.AssigneeID
	}
	if decision.Priority != nil {
		task.Priority = *decision.Priority
	}
	if decision.TaskType != nil {
		task.TaskType = *decision.TaskType
	}

	err = r.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.CreateTask(ctx, task); err != nil {
			return err
		}
		return tx.MarkMessageConverted(ctx, msg.ID, task.ID)
	})
	if err != nil {
		return Outcome{}, err
	}
	r.markConverted(msg, task.ID)
	r.copyAttachments(ctx, msg, task.ID, nil)

	logrus.WithFields(logrus.Fields{"message_id": msg.MessageID, "task_id": task.ID}).Info("Created task from message")
	return Outcome{Task: task, Created: true, Strategy: "new_task"}, nil
}

func (r *Resolver) comment(ctx context.Context, inbox *model.ProjectInbox, msg *model.InboxMessage, task *model.Task, opts Options, strategy string) (Outcome, error) {
	comment := &model.TaskComment{
		TaskID:           task.ID,
		AuthorID:         r.author(ctx, inbox, msg, opts),
		Body:             msg.Body(),
		InboundMessageID: &msg.ID,
	}

	err := r.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.CreateComment(ctx, comment); err != nil {
			return err
		}
		return tx.MarkMessageConverted(ctx, msg.ID, task.ID)
	})
	if err != nil {
		return Outcome{}, err
	}
	r.markConverted(msg, task.ID)
	r.copyAttachments(ctx, msg, task.ID, &comment.ID)

	return Outcome{Task: task, Comment: comment, Strategy: strategy}, nil
}

func (r *Resolver) markConverted(msg *model.InboxMessage, taskID uint) {
	msg.IsConverted = true
	msg.Status = model.MessageStatusConverted
	msg.TaskID = &taskID
}

// copyAttachments links the message's stored attachments to the task. The
// blobs are shared, not uploaded again. Failures are logged.
func (r *Resolver) copyAttachments(ctx context.Context, msg *model.InboxMessage, taskID uint, commentID *uint) {
	atts, err := r.repo.ListMessageAttachments(ctx, msg.ID)
	if err == nil && len(atts) > 0 {
		rows := make([]model.TaskAttachment, 0, len(atts))
		for i := range atts {
			a := atts[i]
			rows = append(rows, model.TaskAttachment{
				TaskID:             taskID,
				CommentID:          commentID,
				SourceAttachmentID: &a.ID,
				Filename:           a.Filename,
				MimeType:           a.MimeType,
				Size:               a.Size,
				StorageKey:         a.StorageKey,
				URL:                a.URL,
			})
		}
		err = r.repo.CreateTaskAttachments(ctx, rows)
	}
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"message_id": msg.MessageID,
			"task_id":    taskID,
		}).Warn("Failed to copy attachments to task")
	}
}

func title(subject string) string {
	if s := strings.TrimSpace(subject); s != "" {
		return s
	}
	return "(no subject)"
}
