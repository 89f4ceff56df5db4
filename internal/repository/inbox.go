package repository

import (
	"context"
	"fmt"
	"time"

	"task-inbox-go/internal/model"
)

func (r *Repository) GetInbox(ctx context.Context, id uint) (*model.ProjectInbox, error) {
	var inbox model.ProjectInbox
	if err := first(r.conn(ctx).Where("id = ?", id), &inbox, ErrInboxNotFound); err != nil {
		return nil, err
	}
	return &inbox, nil
}

func (r *Repository) GetInboxByProject(ctx context.Context, projectID uint) (*model.ProjectInbox, error) {
	var inbox model.ProjectInbox
	if err := first(r.conn(ctx).Where("project_id = ?", projectID), &inbox, ErrInboxNotFound); err != nil {
		return nil, err
	}
	return &inbox, nil
}

func (r *Repository) CreateInbox(ctx context.Context, inbox *model.ProjectInbox) error {
	if err := r.conn(ctx).Create(inbox).Error; err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}
	return nil
}

func (r *Repository) SaveInbox(ctx context.Context, inbox *model.ProjectInbox) error {
	if err := r.conn(ctx).Save(inbox).Error; err != nil {
		return fmt.Errorf("failed to update inbox: %w", err)
	}
	return nil
}

func (r *Repository) GetAccount(ctx context.Context, id uint) (*model.EmailAccount, error) {
	var account model.EmailAccount
	if err := first(r.conn(ctx).Preload("Inbox").Where("id = ?", id), &account, ErrAccountNotFound); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *Repository) GetAccountByInbox(ctx context.Context, inboxID uint) (*model.EmailAccount, error) {
	var account model.EmailAccount
	if err := first(r.conn(ctx).Preload("Inbox").Where("inbox_id = ?", inboxID), &account, ErrAccountNotFound); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *Repository) CreateAccount(ctx context.Context, account *model.EmailAccount) error {
	if err := r.conn(ctx).Omit("Inbox").Create(account).Error; err != nil {
		return fmt.Errorf("failed to create email account: %w", err)
	}
	return nil
}

// SaveAccount updates every column except the sync bookkeeping, which only
// the syncer writes.
func (r *Repository) SaveAccount(ctx context.Context, account *model.EmailAccount) error {
	err := r.conn(ctx).Omit("Inbox", "LastSyncAt", "LastSyncError").Save(account).Error
	if err != nil {
		return fmt.Errorf("failed to update email account: %w", err)
	}
	return nil
}

// ListSyncableAccounts returns enabled accounts whose inbox is enabled and
// which have a positive sync interval, with the inbox preloaded.
func (r *Repository) ListSyncableAccounts(ctx context.Context) ([]model.EmailAccount, error) {
	var accounts []model.EmailAccount
	err := r.conn(ctx).
		Preload("Inbox").
		Joins("JOIN project_inboxes ON project_inboxes.id = email_accounts.inbox_id").
		Where("email_accounts.enabled = ? AND project_inboxes.enabled = ? AND email_accounts.sync_interval_minutes > 0", true, true).
		Order("email_accounts.id ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list syncable accounts: %w", err)
	}
	return accounts, nil
}

// RecordSyncSuccess stamps the sync time and clears the last error.
func (r *Repository) RecordSyncSuccess(ctx context.Context, accountID uint, at time.Time) error {
	err := r.conn(ctx).Model(&model.EmailAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{"last_sync_at": at, "last_sync_error": nil}).Error
	if err != nil {
		return fmt.Errorf("failed to record sync success: %w", err)
	}
	return nil
}

// RecordSyncFailure stores the error string; lastSyncAt is left untouched so
// the next tick retries.
func (r *Repository) RecordSyncFailure(ctx context.Context, accountID uint, syncErr string) error {
	err := r.conn(ctx).Model(&model.EmailAccount{}).
		Where("id = ?", accountID).
		Update("last_sync_error", syncErr).Error
	if err != nil {
		return fmt.Errorf("failed to record sync failure: %w", err)
	}
	return nil
}
