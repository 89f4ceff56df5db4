package rules

import (
	"errors"
	"fmt"
	"strings"

	"task-inbox-go/internal/model"
)

// ErrInvalidRule wraps every validation failure.
var ErrInvalidRule = errors.New("invalid rule")

// Validate checks a rule before it is stored.
func Validate(rule *model.InboxRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if err := validateCondition(rule.Conditions, "conditions"); err != nil {
		return err
	}
	if len(rule.Actions) == 0 {
		return fmt.Errorf("%w: at least one action is required", ErrInvalidRule)
	}
	for i, a := range rule.Actions {
		if err := validateAction(a); err != nil {
			return fmt.Errorf("%w: actions[%d]: %v", ErrInvalidRule, i, err)
		}
	}
	return nil
}

func validateCondition(c model.RuleCondition, path string) error {
	combinator := len(c.All) > 0 || len(c.Any) > 0
	if len(c.All) > 0 && len(c.Any) > 0 {
		return fmt.Errorf("%w: %s: use either all or any, not both", ErrInvalidRule, path)
	}
	if combinator {
		if c.Field != "" || c.Operator != "" {
			return fmt.Errorf("%w: %s: a combinator cannot also be a comparison", ErrInvalidRule, path)
		}
		for i, sub := range c.All {
			if err := validateCondition(sub, fmt.Sprintf("%s.all[%d]", path, i)); err != nil {
				return err
			}
		}
		for i, sub := range c.Any {
			if err := validateCondition(sub, fmt.Sprintf("%s.any[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}

	if !knownFields[c.Field] {
		return fmt.Errorf("%w: %s: unknown field %q", ErrInvalidRule, path, c.Field)
	}
	if !knownOperators[c.Operator] {
		return fmt.Errorf("%w: %s: unknown operator %q", ErrInvalidRule, path, c.Operator)
	}
	if c.Value == "" {
		return fmt.Errorf("%w: %s: value is required", ErrInvalidRule, path)
	}
	if c.Operator == OpMatches {
		if _, err := compile(c.Value); err != nil {
			return fmt.Errorf("%w: %s: invalid pattern: %v", ErrInvalidRule, path, err)
		}
	}
	return nil
}

func validateAction(a model.RuleAction) error {
	if !knownActions[a.Type] {
		return fmt.Errorf("unknown action %q", a.Type)
	}
	switch a.Type {
	case ActionSetPriority, ActionSetTaskType:
		v, err := decodeString(a.Value)
		if err != nil {
			return err
		}
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s requires a value", a.Type)
		}
	case ActionAssignTo:
		id, err := decodeUserID(a.Value)
		if err != nil {
			return err
		}
		if id == 0 {
			return fmt.Errorf("assignTo requires a user id")
		}
	case ActionAddLabels:
		labels, err := decodeLabels(a.Value)
		if err != nil {
			return err
		}
		if len(labels) == 0 {
			return fmt.Errorf("addLabels requires at least one label")
		}
	case ActionAutoReply:
		if _, err := decodeString(a.Value); err != nil {
			return err
		}
	}
	return nil
}
