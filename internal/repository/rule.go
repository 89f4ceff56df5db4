package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"task-inbox-go/internal/model"
)

// ListEnabledRules returns the inbox's enabled rules in evaluation order:
// priority descending, then creation time ascending.
func (r *Repository) ListEnabledRules(ctx context.Context, inboxID uint) ([]model.InboxRule, error) {
	var rules []model.InboxRule
	err := r.conn(ctx).
		Where("inbox_id = ? AND enabled = ?", inboxID, true).
		Order("priority DESC, created_at ASC, id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get enabled rules: %w", err)
	}
	return rules, nil
}

func (r *Repository) ListRules(ctx context.Context, inboxID uint) ([]model.InboxRule, error) {
	var rules []model.InboxRule
	err := r.conn(ctx).Where("inbox_id = ?", inboxID).Order("priority DESC, created_at ASC, id ASC").Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get rules: %w", err)
	}
	return rules, nil
}

func (r *Repository) GetRule(ctx context.Context, id uint) (*model.InboxRule, error) {
	var rule model.InboxRule
	if err := first(r.conn(ctx).Where("id = ?", id), &rule, ErrRuleNotFound); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *Repository) CreateRule(ctx context.Context, rule *model.InboxRule) error {
	if err := r.conn(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

func (r *Repository) SaveRule(ctx context.Context, rule *model.InboxRule) error {
	if err := r.conn(ctx).Save(rule).Error; err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

func (r *Repository) DeleteRule(ctx context.Context, id uint) error {
	res := r.conn(ctx).Delete(&model.InboxRule{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// InsertRuleResult writes the outcome row for a (message, rule) pair. An
// existing row is left as is, so re-evaluation is idempotent.
func (r *Repository) InsertRuleResult(ctx context.Context, res *model.MessageRuleResult) error {
	err := r.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "inbox_message_id"}, {Name: "rule_id"}},
		DoNothing: true,
	}).Create(res).Error
	if err != nil {
		return fmt.Errorf("failed to record rule result: %w", err)
	}
	return nil
}

// ListRuleResults returns the message's rule outcomes in the order they were recorded.
func (r *Repository) ListRuleResults(ctx context.Context, messageID uint) ([]model.MessageRuleResult, error) {
	var results []model.MessageRuleResult
	if err := r.conn(ctx).Where("inbox_message_id = ?", messageID).Order("id ASC").Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to list rule results: %w", err)
	}
	return results, nil
}
