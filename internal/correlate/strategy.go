// Package correlate decides whether an inbound message starts a task or
// continues an existing one.
package correlate

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"task-inbox-go/internal/model"
	"task-inbox-go/internal/repository"
	"task-inbox-go/internal/thread"
)

// Request is what the lookup strategies match on.
type Request struct {
	ProjectID uint
	InboxID   uint
	ThreadID  string
	InReplyTo string
}

// Strategy is one step of the fallback chain. A nil task means no match.
type Strategy interface {
	Name() string
	Lookup(ctx context.Context, req Request) (*model.Task, error)
}

// ThreadMatch finds the project's task for the thread, in raw or
// bracket-wrapped form.
type ThreadMatch struct{ Repo *repository.Repository }

func (ThreadMatch) Name() string { return "thread" }

func (s ThreadMatch) Lookup(ctx context.Context, req Request) (*model.Task, error) {
	return s.Repo.FindTaskByThread(ctx, req.ProjectID, thread.Variants(req.ThreadID))
}

// CommentReplyMatch follows a reply to a comment that was sent as email.
type CommentReplyMatch struct{ Repo *repository.Repository }

func (CommentReplyMatch) Name() string { return "comment_reply" }

func (s CommentReplyMatch) Lookup(ctx context.Context, req Request) (*model.Task, error) {
	if req.InReplyTo == "" {
		return nil, nil
	}
	return s.Repo.FindTaskByCommentEmail(ctx, req.ProjectID, thread.Variants(req.InReplyTo))
}

// ConvertedMessageMatch follows a reply to an already converted message of
// the same inbox. It covers replies whose thread root arrived late.
type ConvertedMessageMatch struct{ Repo *repository.Repository }

func (ConvertedMessageMatch) Name() string { return "converted_message" }

func (s ConvertedMessageMatch) Lookup(ctx context.Context, req Request) (*model.Task, error) {
	if req.InReplyTo == "" {
		return nil, nil
	}
	parent, err := s.Repo.FindConvertedMessage(ctx, req.InboxID, thread.Variants(req.InReplyTo))
	if err != nil || parent == nil {
		return nil, err
	}
	task, err := s.Repo.GetTask(ctx, *parent.TaskID)
	if errors.Is(err, repository.ErrTaskNotFound) {
		logrus.WithFields(logrus.Fields{
			"message_id": parent.MessageID,
			"task_id":    *parent.TaskID,
		}).Warn("Converted message points at a missing task")
		return nil, nil
	}
	return task, err
}

// DefaultStrategies is the lookup order used for ingestion.
func DefaultStrategies(repo *repository.Repository) []Strategy {
	return []Strategy{
		ThreadMatch{Repo: repo},
		CommentReplyMatch{Repo: repo},
		ConvertedMessageMatch{Repo: repo},
	}
}
