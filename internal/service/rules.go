package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"task-inbox-go/internal/model"
	"task-inbox-go/internal/rules"
)

// RuleInput is the editable part of an inbox rule. A nil Enabled means true
// on create and unchanged on update.
type RuleInput struct {
	Name        string              `json:"name" binding:"required"`
	Priority    int                 `json:"priority"`
	Conditions  model.RuleCondition `json:"conditions"`
	Actions     []model.RuleAction  `json:"actions"`
	StopOnMatch bool                `json:"stop_on_match"`
	Enabled     *bool               `json:"enabled"`
}

func (in RuleInput) apply(rule *model.InboxRule) {
	rule.Name = in.Name
	rule.Priority = in.Priority
	rule.Conditions = in.Conditions
	rule.Actions = in.Actions
	rule.StopOnMatch = in.StopOnMatch
	if in.Enabled != nil {
		rule.Enabled = *in.Enabled
	}
}

// ListRules returns the rules of a project's inbox in evaluation order.
func (s *Service) ListRules(ctx context.Context, projectID uint) ([]model.InboxRule, error) {
	inbox, err := s.repo.GetInboxByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	list, err := s.repo.ListRules(ctx, inbox.ID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.InboxRule{}
	}
	return list, nil
}

func (s *Service) GetRule(ctx context.Context, id uint) (*model.InboxRule, error) {
	return s.repo.GetRule(ctx, id)
}

func (s *Service) CreateRule(ctx context.Context, projectID uint, in RuleInput) (*model.InboxRule, error) {
	inbox, err := s.repo.GetInboxByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	rule := &model.InboxRule{InboxID: inbox.ID, Enabled: true}
	in.apply(rule)
	if err := rules.Validate(rule); err != nil {
		return nil, err
	}
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"rule_id": rule.ID, "inbox_id": inbox.ID}).Info("Rule created")
	return rule, nil
}

func (s *Service) UpdateRule(ctx context.Context, id uint, in RuleInput) (*model.InboxRule, error) {
	rule, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(rule)
	if err := rules.Validate(rule); err != nil {
		return nil, err
	}
	if err := s.repo.SaveRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) DeleteRule(ctx context.Context, id uint) error {
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		return err
	}
	logrus.WithField("rule_id", id).Info("Rule deleted")
	return nil
}

func (s *Service) SetRuleEnabled(ctx context.Context, id uint, enabled bool) (*model.InboxRule, error) {
	rule, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.Enabled == enabled {
		return rule, nil
	}
	rule.Enabled = enabled
	if err := s.repo.SaveRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}
