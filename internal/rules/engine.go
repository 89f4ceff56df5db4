package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"task-inbox-go/internal/model"
)

// Store persists rule outcomes and immediate message mutations.
type Store interface {
	ListRuleResults(ctx context.Context, messageID uint) ([]model.MessageRuleResult, error)
	InsertRuleResult(ctx context.Context, res *model.MessageRuleResult) error
	MarkMessageSpam(ctx context.Context, id uint) error
	MarkMessageAutoReplied(ctx context.Context, id uint) error
}

// AutoReplier sends a rule-triggered reply to the sender of msg.
type AutoReplier interface {
	AutoReply(ctx context.Context, msg *model.InboxMessage, template string) error
}

// Outcome summarizes one evaluation pass.
type Outcome struct {
	MatchedRuleIDs []uint
	MarkedSpam     bool
	AutoReplied    bool
}

// Engine evaluates an inbox's rules against a persisted message.
type Engine struct {
	store   Store
	replier AutoReplier
	onMatch func()
}

// NewEngine creates a rule engine. replier may be nil, in which case autoReply
// actions are recorded as not sent.
func NewEngine(store Store, replier AutoReplier) *Engine {
	return &Engine{store: store, replier: replier}
}

// OnMatch registers a hook called for every matched rule.
func (e *Engine) OnMatch(fn func()) {
	e.onMatch = fn
}

// Sort orders rules by priority descending, then creation time and id ascending.
func Sort(rules []model.InboxRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Apply evaluates the rules in order. Each matching rule has its immediate
// actions executed and its outcome recorded; stopOnMatch ends the pass.
// A rule that already has a recorded outcome for msg is not executed again:
// its stored outcome is reused.
func (e *Engine) Apply(ctx context.Context, msg *model.InboxMessage, rules []model.InboxRule) (Outcome, error) {
	var out Outcome

	existing, err := e.store.ListRuleResults(ctx, msg.ID)
	if err != nil {
		return out, err
	}
	recorded := make(map[uint]model.MessageRuleResult, len(existing))
	for _, r := range existing {
		recorded[r.RuleID] = r
	}

	ordered := make([]model.InboxRule, len(rules))
	copy(ordered, rules)
	Sort(ordered)

	fields := FieldsFor(msg)
	for i := range ordered {
		rule := &ordered[i]
		if !rule.Enabled || !Evaluate(rule.Conditions, fields) {
			continue
		}

		out.MatchedRuleIDs = append(out.MatchedRuleIDs, rule.ID)
		if e.onMatch != nil {
			e.onMatch()
		}

		res, done := recorded[rule.ID]
		if !done {
			res = e.execute(ctx, msg, rule)
			if err := e.store.InsertRuleResult(ctx, &res); err != nil {
				return out, fmt.Errorf("rule %d: %w", rule.ID, err)
			}
		}
		out.MarkedSpam = out.MarkedSpam || res.MarkedSpam
		out.AutoReplied = out.AutoReplied || res.AutoReplied

		if rule.StopOnMatch {
			break
		}
	}

	return out, nil
}

// execute runs the rule's actions and returns the outcome row to record.
func (e *Engine) execute(ctx context.Context, msg *model.InboxMessage, rule *model.InboxRule) model.MessageRuleResult {
	res := model.MessageRuleResult{InboxMessageID: msg.ID, RuleID: rule.ID}
	log := logrus.WithFields(logrus.Fields{"rule_id": rule.ID, "message_id": msg.MessageID})

	for _, action := range rule.Actions {
		switch action.Type {
		case ActionSetPriority:
			if v, err := decodeString(action.Value); err == nil && v != "" && res.Priority == nil {
				res.Priority = &v
			}
		case ActionSetTaskType:
			if v, err := decodeString(action.Value); err == nil && v != "" && res.TaskType == nil {
				res.TaskType = &v
			}
		case ActionAssignTo:
			if id, err := decodeUserID(action.Value); err == nil && id != 0 && res.AssigneeID == nil {
				res.AssigneeID = &id
			}
		case ActionAddLabels:
			if labels, err := decodeLabels(action.Value); err == nil {
				res.Labels = unionLabels(res.Labels, labels)
			}
		case ActionMarkAsSpam:
			if err := e.store.MarkMessageSpam(ctx, msg.ID); err != nil {
				log.WithError(err).Error("Failed to mark message as spam")
				continue
			}
			msg.IsSpam = true
			msg.Status = model.MessageStatusIgnored
			res.MarkedSpam = true
		case ActionAutoReply:
			if msg.IsSpam || msg.AutoReplied || e.replier == nil {
				continue
			}
			template, _ := decodeString(action.Value)
			if err := e.replier.AutoReply(ctx, msg, template); err != nil {
				log.WithError(err).Warn("Rule auto-reply failed")
				continue
			}
			msg.AutoReplied = true
			res.AutoReplied = true
			if err := e.store.MarkMessageAutoReplied(ctx, msg.ID); err != nil {
				log.WithError(err).Warn("Failed to flag message as auto-replied")
			}
		default:
			log.WithField("action", action.Type).Warn("Unknown rule action, skipping")
		}
	}
	return res
}
