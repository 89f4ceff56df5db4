package rules

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-inbox-go/internal/model"
	"task-inbox-go/internal/normalize"
)

type memStore struct {
	results  []model.MessageRuleResult
	spam     []uint
	replied  []uint
	failSpam bool
}

func (s *memStore) ListRuleResults(_ context.Context, messageID uint) ([]model.MessageRuleResult, error) {
	var out []model.MessageRuleResult
	for _, r := range s.results {
		if r.InboxMessageID == messageID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) InsertRuleResult(_ context.Context, res *model.MessageRuleResult) error {
	for _, r := range s.results {
		if r.InboxMessageID == res.InboxMessageID && r.RuleID == res.RuleID {
			return nil
		}
	}
	s.results = append(s.results, *res)
	return nil
}

func (s *memStore) MarkMessageSpam(_ context.Context, id uint) error {
	if s.failSpam {
		return errors.New("db down")
	}
	s.spam = append(s.spam, id)
	return nil
}

func (s *memStore) MarkMessageAutoReplied(_ context.Context, id uint) error {
	s.replied = append(s.replied, id)
	return nil
}

type fakeReplier struct {
	templates []string
	err       error
}

func (r *fakeReplier) AutoReply(_ context.Context, _ *model.InboxMessage, template string) error {
	if r.err != nil {
		return r.err
	}
	r.templates = append(r.templates, template)
	return nil
}

func raw(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func leaf(field, op, value string) model.RuleCondition {
	return model.RuleCondition{Field: field, Operator: op, Value: value}
}

func testMessage() *model.InboxMessage {
	return &model.InboxMessage{
		ID:        1,
		MessageID: "m1@example.com",
		Subject:   "URGENT: Server down",
		FromEmail: "alerts@monitoring.io",
		TextBody:  "The api cluster is not responding",
		HTMLBody:  "<p>ignored when text exists</p>",
		To:        []normalize.Address{{Email: "ops@inbox.example.com"}, {Email: "team@example.com"}},
		Cc:        []normalize.Address{{Email: "boss@example.com"}},
		Status:    model.MessageStatusPending,
	}
}

func TestEvaluateOperators(t *testing.T) {
	f := FieldsFor(testMessage())

	assert.True(t, Evaluate(leaf(FieldSubject, OpContains, "server"), f))
	assert.True(t, Evaluate(leaf(FieldFrom, OpEquals, "ALERTS@monitoring.io"), f))
	assert.True(t, Evaluate(leaf(FieldSubject, OpStartsWith, "urgent"), f))
	assert.True(t, Evaluate(leaf(FieldFrom, OpEndsWith, "@MONITORING.IO"), f))
	assert.True(t, Evaluate(leaf(FieldBody, OpMatches, `api\s+cluster`), f))
	assert.True(t, Evaluate(leaf(FieldTo, OpContains, "ops@inbox.example.com,team@"), f))
	assert.True(t, Evaluate(leaf(FieldCc, OpEquals, "boss@example.com"), f))

	assert.False(t, Evaluate(leaf(FieldBody, OpContains, "ignored"), f))
	assert.False(t, Evaluate(leaf(FieldSubject, OpMatches, `([unclosed`), f))
	assert.False(t, Evaluate(leaf("header", OpContains, "x"), f))
	assert.False(t, Evaluate(leaf(FieldSubject, "like", "x"), f))
}

func TestEvaluateBodyFallsBackToHTML(t *testing.T) {
	msg := testMessage()
	msg.TextBody = ""
	assert.True(t, Evaluate(leaf(FieldBody, OpContains, "ignored when"), FieldsFor(msg)))
}

func TestEvaluateCombinators(t *testing.T) {
	f := FieldsFor(testMessage())

	all := model.RuleCondition{All: []model.RuleCondition{
		leaf(FieldSubject, OpContains, "urgent"),
		{Any: []model.RuleCondition{
			leaf(FieldFrom, OpEndsWith, "@nowhere.com"),
			leaf(FieldBody, OpContains, "not responding"),
		}},
	}}
	assert.True(t, Evaluate(all, f))

	all.All = append(all.All, leaf(FieldSubject, OpContains, "resolved"))
	assert.False(t, Evaluate(all, f))

	anyCond := model.RuleCondition{Any: []model.RuleCondition{
		leaf(FieldSubject, OpMatches, "("),
		leaf(FieldSubject, OpContains, "down"),
	}}
	assert.True(t, Evaluate(anyCond, f))
}

func rule(id uint, priority int, stop bool, cond model.RuleCondition, actions ...model.RuleAction) model.InboxRule {
	return model.InboxRule{
		ID:          id,
		InboxID:     1,
		Name:        "rule",
		Priority:    priority,
		Conditions:  cond,
		Actions:     actions,
		StopOnMatch: stop,
		Enabled:     true,
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, int(id), 0, time.UTC),
	}
}

func TestApplyStopOnMatchRespectsPriority(t *testing.T) {
	store := &memStore{}
	engine := NewEngine(store, nil)
	match := leaf(FieldSubject, OpContains, "server")

	r1 := rule(1, 10, true, match, model.RuleAction{Type: ActionSetPriority, Value: raw("high")})
	r2 := rule(2, 5, false, match, model.RuleAction{Type: ActionSetPriority, Value: raw("low")})

	out, err := engine.Apply(context.Background(), testMessage(), []model.InboxRule{r2, r1})
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, out.MatchedRuleIDs)
	require.Len(t, store.results, 1)
	assert.Equal(t, uint(1), store.results[0].RuleID)
	assert.Equal(t, "high", *store.results[0].Priority)
}

func TestApplyRecordsDeferredOutcomes(t *testing.T) {
	store := &memStore{}
	engine := NewEngine(store, nil)
	match := leaf(FieldFrom, OpEndsWith, "monitoring.io")

	rules := []model.InboxRule{
		rule(1, 5, false, match,
			model.RuleAction{Type: ActionAssignTo, Value: raw(42)},
			model.RuleAction{Type: ActionAddLabels, Value: raw("ops")},
			model.RuleAction{Type: ActionSetTaskType, Value: raw("incident")},
		),
		rule(2, 5, false, match,
			model.RuleAction{Type: ActionAssignTo, Value: raw("7")},
			model.RuleAction{Type: ActionAddLabels, Value: raw([]string{"ops", "pager"})},
		),
		rule(3, 1, false, leaf(FieldSubject, OpContains, "nope"), model.RuleAction{Type: ActionAddLabels, Value: raw("never")}),
	}
	disabled := rule(4, 100, true, match, model.RuleAction{Type: ActionAddLabels, Value: raw("off")})
	disabled.Enabled = false
	rules = append(rules, disabled)

	out, err := engine.Apply(context.Background(), testMessage(), rules)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, out.MatchedRuleIDs)
	assert.False(t, out.MarkedSpam)

	d := Aggregate(store.results)
	require.NotNil(t, d.AssigneeID)
	assert.Equal(t, uint(42), *d.AssigneeID)
	require.NotNil(t, d.TaskType)
	assert.Equal(t, "incident", *d.TaskType)
	assert.Nil(t, d.Priority)
	assert.Equal(t, []string{"ops", "pager"}, d.Labels)
}

func TestApplyMarkAsSpam(t *testing.T) {
	store := &memStore{}
	replier := &fakeReplier{}
	engine := NewEngine(store, replier)
	msg := testMessage()

	rules := []model.InboxRule{
		rule(1, 10, false, leaf(FieldSubject, OpContains, "urgent"), model.RuleAction{Type: ActionMarkAsSpam}),
		rule(2, 5, false, leaf(FieldSubject, OpContains, "urgent"), model.RuleAction{Type: ActionAutoReply, Value: raw("Got it")}),
	}
	out, err := engine.Apply(context.Background(), msg, rules)
	require.NoError(t, err)
	assert.True(t, out.MarkedSpam)
	assert.False(t, out.AutoReplied)
	assert.True(t, msg.IsSpam)
	assert.Equal(t, model.MessageStatusIgnored, msg.Status)
	assert.Equal(t, []uint{1}, store.spam)
	assert.Empty(t, replier.templates)
}

func TestApplyAutoReply(t *testing.T) {
	store := &memStore{}
	replier := &fakeReplier{}
	engine := NewEngine(store, replier)
	msg := testMessage()

	r := rule(1, 1, false, leaf(FieldSubject, OpContains, "urgent"), model.RuleAction{Type: ActionAutoReply, Value: raw("On it: {{subject}}")})
	out, err := engine.Apply(context.Background(), msg, []model.InboxRule{r})
	require.NoError(t, err)
	assert.True(t, out.AutoReplied)
	assert.True(t, msg.AutoReplied)
	assert.Equal(t, []string{"On it: {{subject}}"}, replier.templates)
	assert.Equal(t, []uint{1}, store.replied)

	// A second pass reuses the recorded outcome instead of replying again.
	out, err = engine.Apply(context.Background(), msg, []model.InboxRule{r})
	require.NoError(t, err)
	assert.True(t, out.AutoReplied)
	assert.Len(t, replier.templates, 1)
	assert.Len(t, store.results, 1)
}

func TestApplyAutoReplyFailureIsNotReported(t *testing.T) {
	store := &memStore{}
	engine := NewEngine(store, &fakeReplier{err: errors.New("smtp refused")})

	r := rule(1, 1, false, leaf(FieldSubject, OpContains, "urgent"), model.RuleAction{Type: ActionAutoReply})
	out, err := engine.Apply(context.Background(), testMessage(), []model.InboxRule{r})
	require.NoError(t, err)
	assert.False(t, out.AutoReplied)
	require.Len(t, store.results, 1)
	assert.False(t, store.results[0].AutoReplied)
}

func TestSort(t *testing.T) {
	rules := []model.InboxRule{
		rule(3, 1, false, model.RuleCondition{}),
		rule(2, 9, false, model.RuleCondition{}),
		rule(1, 9, false, model.RuleCondition{}),
	}
	Sort(rules)
	assert.Equal(t, uint(1), rules[0].ID)
	assert.Equal(t, uint(2), rules[1].ID)
	assert.Equal(t, uint(3), rules[2].ID)
}

func TestAggregateFirstMatchWins(t *testing.T) {
	high, low := "high", "low"
	bug := "bug"
	one, two := uint(1), uint(2)
	d := Aggregate([]model.MessageRuleResult{
		{Labels: []string{"a"}},
		{Priority: &high, AssigneeID: &one, Labels: []string{"b", "a"}},
		{Priority: &low, AssigneeID: &two, TaskType: &bug, Labels: []string{"c"}},
	})
	assert.Equal(t, "high", *d.Priority)
	assert.Equal(t, uint(1), *d.AssigneeID)
	assert.Equal(t, "bug", *d.TaskType)
	assert.Equal(t, []string{"a", "b", "c"}, d.Labels)
}

func TestValidate(t *testing.T) {
	valid := model.InboxRule{
		Name: "urgent",
		Conditions: model.RuleCondition{Any: []model.RuleCondition{
			leaf(FieldSubject, OpMatches, `^urgent`),
			leaf(FieldFrom, OpEndsWith, "@vip.com"),
		}},
		Actions: []model.RuleAction{
			{Type: ActionSetPriority, Value: raw("high")},
			{Type: ActionAddLabels, Value: raw([]string{"vip"})},
			{Type: ActionMarkAsSpam},
		},
	}
	assert.NoError(t, Validate(&valid))

	cases := map[string]func(r *model.InboxRule){
		"no name":        func(r *model.InboxRule) { r.Name = " " },
		"bad field":      func(r *model.InboxRule) { r.Conditions.Any[0].Field = "header" },
		"bad operator":   func(r *model.InboxRule) { r.Conditions.Any[0].Operator = "like" },
		"bad regex":      func(r *model.InboxRule) { r.Conditions.Any[0].Value = "([" },
		"empty value":    func(r *model.InboxRule) { r.Conditions.Any[1].Value = "" },
		"mixed node":     func(r *model.InboxRule) { r.Conditions.All = []model.RuleCondition{leaf(FieldFrom, OpEquals, "x")} },
		"no actions":     func(r *model.InboxRule) { r.Actions = nil },
		"unknown action": func(r *model.InboxRule) { r.Actions[0].Type = "forward" },
		"empty priority": func(r *model.InboxRule) { r.Actions[0].Value = raw("") },
		"bad assignee":   func(r *model.InboxRule) { r.Actions[0] = model.RuleAction{Type: ActionAssignTo, Value: raw("bob")} },
		"no labels":      func(r *model.InboxRule) { r.Actions[1].Value = raw([]string{" "}) },
	}
	for name, mutate := range cases {
		r := valid
		r.Conditions = model.RuleCondition{Any: append([]model.RuleCondition(nil), valid.Conditions.Any...)}
		r.Actions = append([]model.RuleAction(nil), valid.Actions...)
		mutate(&r)
		err := Validate(&r)
		assert.ErrorIs(t, err, ErrInvalidRule, name)
	}
}
