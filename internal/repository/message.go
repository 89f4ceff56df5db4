package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"task-inbox-go/internal/model"
)

// MessageFilter narrows ListMessages. Zero values disable a filter.
type MessageFilter struct {
	Status      string
	FromEmail   string
	Since       *time.Time
	Until       *time.Time
	Search      string
	IncludeSpam bool
	Page        int
	Limit       int
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (r *Repository) MessageExists(ctx context.Context, messageID string) (bool, error) {
	var count int64
	err := r.conn(ctx).Model(&model.InboxMessage{}).Where("message_id = ?", messageID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}
	return count > 0, nil
}

// CreateMessage inserts the row; unique violations are returned unwrapped by
// gorm so callers can test them with db.IsDuplicate.
func (r *Repository) CreateMessage(ctx context.Context, msg *model.InboxMessage) error {
	return r.conn(ctx).Omit("Attachments").Create(msg).Error
}

func (r *Repository) GetMessage(ctx context.Context, id uint) (*model.InboxMessage, error) {
	var msg model.InboxMessage
	if err := first(r.conn(ctx).Preload("Attachments").Where("id = ?", id), &msg, ErrMessageNotFound); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *Repository) FindMessageByMessageID(ctx context.Context, messageID string) (*model.InboxMessage, error) {
	var msg model.InboxMessage
	ok, err := find(r.conn(ctx).Where("message_id = ?", messageID), &msg)
	if !ok || err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindConvertedMessage finds a converted message of the inbox whose id is one
// of the given forms.
func (r *Repository) FindConvertedMessage(ctx context.Context, inboxID uint, messageIDs []string) (*model.InboxMessage, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var msg model.InboxMessage
	q := r.conn(ctx).
		Where("inbox_id = ? AND message_id IN ? AND is_converted = ? AND task_id IS NOT NULL", inboxID, messageIDs, true).
		Order("id ASC")
	ok, err := find(q, &msg)
	if !ok || err != nil {
		return nil, err
	}
	return &msg, nil
}

// LatestTaskMessage returns the most recent inbound message linked to a task.
func (r *Repository) LatestTaskMessage(ctx context.Context, taskID uint) (*model.InboxMessage, error) {
	var msg model.InboxMessage
	q := r.conn(ctx).Where("task_id = ?", taskID).Order("received_at DESC, id DESC")
	if err := first(q, &msg, ErrMessageNotFound); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *Repository) MarkMessageSpam(ctx context.Context, id uint) error {
	err := r.conn(ctx).Model(&model.InboxMessage{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_spam": true, "status": model.MessageStatusIgnored}).Error
	if err != nil {
		return fmt.Errorf("failed to mark message as spam: %w", err)
	}
	return nil
}

func (r *Repository) MarkMessageConverted(ctx context.Context, id, taskID uint) error {
	err := r.conn(ctx).Model(&model.InboxMessage{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_converted": true,
			"status":       model.MessageStatusConverted,
			"task_id":      taskID,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark message as converted: %w", err)
	}
	return nil
}

func (r *Repository) MarkMessageAutoReplied(ctx context.Context, id uint) error {
	err := r.conn(ctx).Model(&model.InboxMessage{}).Where("id = ?", id).Update("auto_replied", true).Error
	if err != nil {
		return fmt.Errorf("failed to flag auto reply: %w", err)
	}
	return nil
}

// ListMessages returns a page of a project's messages, newest first, and the
// total count matching the filter.
func (r *Repository) ListMessages(ctx context.Context, projectID uint, f MessageFilter) ([]model.InboxMessage, int64, error) {
	var total int64
	if err := r.messageQuery(ctx, projectID, f).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	page := f.Page
	if page < 1 {
		page = 1
	}

	var msgs []model.InboxMessage
	err := r.messageQuery(ctx, projectID, f).
		Order("received_at DESC, id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&msgs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, total, nil
}

func (r *Repository) messageQuery(ctx context.Context, projectID uint, f MessageFilter) *gorm.DB {
	q := r.conn(ctx).Model(&model.InboxMessage{}).Where("project_id = ?", projectID)
	if f.Status != "" {
		q = q.Where("status = ?", strings.ToUpper(f.Status))
	}
	if f.FromEmail != "" {
		q = q.Where("LOWER(from_email) LIKE ?", "%"+strings.ToLower(f.FromEmail)+"%")
	}
	if f.Since != nil {
		q = q.Where("received_at >= ?", *f.Since)
	}
	if f.Until != nil {
		q = q.Where("received_at <= ?", *f.Until)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("(LOWER(subject) LIKE ? OR LOWER(text_body) LIKE ? OR LOWER(from_name) LIKE ? OR LOWER(from_email) LIKE ?)", like, like, like, like)
	}
	if !f.IncludeSpam {
		q = q.Where("is_spam = ?", false)
	}
	return q
}

func (r *Repository) CreateMessageAttachment(ctx context.Context, att *model.MessageAttachment) error {
	if err := r.conn(ctx).Create(att).Error; err != nil {
		return fmt.Errorf("failed to create message attachment: %w", err)
	}
	return nil
}

func (r *Repository) ListMessageAttachments(ctx context.Context, messageID uint) ([]model.MessageAttachment, error) {
	var atts []model.MessageAttachment
	if err := r.conn(ctx).Where("inbox_message_id = ?", messageID).Order("id ASC").Find(&atts).Error; err != nil {
		return nil, fmt.Errorf("failed to list message attachments: %w", err)
	}
	return atts, nil
}
