package model

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// RuleCondition is a node of a rule's condition tree. A node with All or Any
// set is a combinator; otherwise Field, Operator and Value form a leaf.
type RuleCondition struct {
	All      []RuleCondition `json:"all,omitempty"`
	Any      []RuleCondition `json:"any,omitempty"`
	Field    string          `json:"field,omitempty"`
	Operator string          `json:"operator,omitempty"`
	Value    string          `json:"value,omitempty"`
}

// RuleAction is one action of a rule. Value is kept raw because addLabels
// accepts either a string or a list.
type RuleAction struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// InboxRule is a condition/action rule scoped to one inbox.
type InboxRule struct {
	ID          uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	InboxID     uint           `json:"inbox_id" gorm:"not null;index"`
	Name        string         `json:"name" gorm:"type:varchar(255);not null"`
	Priority    int            `json:"priority" gorm:"not null;index"`
	Conditions  RuleCondition  `json:"conditions" gorm:"type:text;serializer:json"`
	Actions     []RuleAction   `json:"actions" gorm:"type:text;serializer:json"`
	StopOnMatch bool           `json:"stop_on_match" gorm:"not null"`
	Enabled     bool           `json:"enabled" gorm:"not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for InboxRule
func (InboxRule) TableName() string {
	return "inbox_rules"
}

// MessageRuleResult records the deferred outcome of one matched rule for one
// message. Rows are written once and never updated.
type MessageRuleResult struct {
	ID             uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	InboxMessageID uint      `json:"inbox_message_id" gorm:"not null;uniqueIndex:idx_message_rule"`
	RuleID         uint      `json:"rule_id" gorm:"not null;uniqueIndex:idx_message_rule"`
	Priority       *string   `json:"priority" gorm:"type:varchar(50)"`
	AssigneeID     *uint     `json:"assignee_id"`
	TaskType       *string   `json:"task_type" gorm:"type:varchar(50)"`
	Labels         []string  `json:"labels" gorm:"type:text;serializer:json"`
	MarkedSpam     bool      `json:"marked_spam" gorm:"not null"`
	AutoReplied    bool      `json:"auto_replied" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName specifies the table name for MessageRuleResult
func (MessageRuleResult) TableName() string {
	return "message_rule_results"
}
