package rules

import (
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"task-inbox-go/internal/model"
	"task-inbox-go/internal/normalize"
)

// Condition fields.
const (
	FieldFrom    = "from"
	FieldSubject = "subject"
	FieldBody    = "body"
	FieldTo      = "to"
	FieldCc      = "cc"
)

// Condition operators. All comparisons ignore case.
const (
	OpContains   = "contains"
	OpEquals     = "equals"
	OpStartsWith = "startsWith"
	OpEndsWith   = "endsWith"
	OpMatches    = "matches"
)

var (
	knownFields    = map[string]bool{FieldFrom: true, FieldSubject: true, FieldBody: true, FieldTo: true, FieldCc: true}
	knownOperators = map[string]bool{OpContains: true, OpEquals: true, OpStartsWith: true, OpEndsWith: true, OpMatches: true}
)

// Fields is the matchable view of a message.
type Fields struct {
	From    string
	Subject string
	Body    string
	To      string
	Cc      string
}

// FieldsFor builds the matchable view. Body is the plaintext body, or the
// HTML body when there is no plaintext; address lists are comma-joined.
func FieldsFor(msg *model.InboxMessage) Fields {
	body := msg.TextBody
	if body == "" {
		body = msg.HTMLBody
	}
	return Fields{
		From:    msg.FromEmail,
		Subject: msg.Subject,
		Body:    body,
		To:      normalize.JoinEmails(msg.To),
		Cc:      normalize.JoinEmails(msg.Cc),
	}
}

func (f Fields) get(field string) (string, bool) {
	switch field {
	case FieldFrom:
		return f.From, true
	case FieldSubject:
		return f.Subject, true
	case FieldBody:
		return f.Body, true
	case FieldTo:
		return f.To, true
	case FieldCc:
		return f.Cc, true
	}
	return "", false
}

// Evaluate reports whether the condition tree holds for the fields.
func Evaluate(c model.RuleCondition, f Fields) bool {
	switch {
	case len(c.All) > 0:
		for _, sub := range c.All {
			if !Evaluate(sub, f) {
				return false
			}
		}
		return true
	case len(c.Any) > 0:
		for _, sub := range c.Any {
			if Evaluate(sub, f) {
				return true
			}
		}
		return false
	default:
		return evaluateLeaf(c, f)
	}
}

func evaluateLeaf(c model.RuleCondition, f Fields) bool {
	actual, ok := f.get(c.Field)
	if !ok {
		return false
	}

	if c.Operator == OpMatches {
		re, err := compile(c.Value)
		if err != nil {
			logrus.WithFields(logrus.Fields{"pattern": c.Value, "error": err}).Warn("Invalid rule pattern, treating as no match")
			return false
		}
		return re.MatchString(actual)
	}

	a, v := strings.ToLower(actual), strings.ToLower(c.Value)
	switch c.Operator {
	case OpContains:
		return strings.Contains(a, v)
	case OpEquals:
		return a == v
	case OpStartsWith:
		return strings.HasPrefix(a, v)
	case OpEndsWith:
		return strings.HasSuffix(a, v)
	}
	return false
}

var patterns sync.Map

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	patterns.Store(pattern, re)
	return re, nil
}
