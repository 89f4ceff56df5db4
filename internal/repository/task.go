package repository

import (
	"context"
	"fmt"

	"task-inbox-go/internal/model"
)

// FindTaskByThread finds a task of the project whose thread id equals any of
// the given forms.
func (r *Repository) FindTaskByThread(ctx context.Context, projectID uint, threadIDs []string) (*model.Task, error) {
	if len(threadIDs) == 0 {
		return nil, nil
	}
	var task model.Task
	ok, err := find(r.conn(ctx).Where("project_id = ? AND email_thread_id IN ?", projectID, threadIDs).Order("id ASC"), &task)
	if !ok || err != nil {
		return nil, err
	}
	return &task, nil
}

// FindTaskByCommentEmail finds the task owning a comment that was sent as
// email with one of the given message ids.
func (r *Repository) FindTaskByCommentEmail(ctx context.Context, projectID uint, emailMessageIDs []string) (*model.Task, error) {
	if len(emailMessageIDs) == 0 {
		return nil, nil
	}
	var task model.Task
	q := r.conn(ctx).
		Joins("JOIN task_comments ON task_comments.task_id = tasks.id").
		Where("tasks.project_id = ? AND task_comments.email_message_id IN ?", projectID, emailMessageIDs).
		Order("task_comments.id DESC")
	ok, err := find(q, &task)
	if !ok || err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *Repository) GetTask(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := first(r.conn(ctx).Where("id = ?", id), &task, ErrTaskNotFound); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask inserts the task; unique violations on (project, thread) are
// returned unwrapped for db.IsDuplicate.
func (r *Repository) CreateTask(ctx context.Context, task *model.Task) error {
	return r.conn(ctx).Create(task).Error
}

func (r *Repository) CountTasks(ctx context.Context, projectID uint) (int64, error) {
	var n int64
	if err := r.conn(ctx).Model(&model.Task{}).Where("project_id = ?", projectID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

func (r *Repository) CreateComment(ctx context.Context, comment *model.TaskComment) error {
	if err := r.conn(ctx).Create(comment).Error; err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

func (r *Repository) GetComment(ctx context.Context, id uint) (*model.TaskComment, error) {
	var comment model.TaskComment
	if err := first(r.conn(ctx).Where("id = ?", id), &comment, ErrCommentNotFound); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *Repository) ListComments(ctx context.Context, taskID uint) ([]model.TaskComment, error) {
	var comments []model.TaskComment
	if err := r.conn(ctx).Where("task_id = ?", taskID).Order("id ASC").Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// MarkCommentSent records the outbound message id of a comment sent as email.
func (r *Repository) MarkCommentSent(ctx context.Context, id uint, emailMessageID string) error {
	err := r.conn(ctx).Model(&model.TaskComment{}).Where("id = ?", id).
		Updates(map[string]interface{}{"email_message_id": emailMessageID, "sent_as_email": true}).Error
	if err != nil {
		return fmt.Errorf("failed to mark comment as sent: %w", err)
	}
	return nil
}

func (r *Repository) CreateTaskAttachments(ctx context.Context, atts []model.TaskAttachment) error {
	if len(atts) == 0 {
		return nil
	}
	if err := r.conn(ctx).Create(&atts).Error; err != nil {
		return fmt.Errorf("failed to create task attachments: %w", err)
	}
	return nil
}

func (r *Repository) ListTaskAttachments(ctx context.Context, taskID uint) ([]model.TaskAttachment, error) {
	var atts []model.TaskAttachment
	if err := r.conn(ctx).Where("task_id = ?", taskID).Order("id ASC").Find(&atts).Error; err != nil {
		return nil, fmt.Errorf("failed to list task attachments: %w", err)
	}
	return atts, nil
}
