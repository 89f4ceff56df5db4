package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Action types. The first four are deferred and only recorded; markAsSpam and
// autoReply run while the rule is evaluated.
const (
	ActionSetPriority = "setPriority"
	ActionAssignTo    = "assignTo"
	ActionAddLabels   = "addLabels"
	ActionSetTaskType = "setTaskType"
	ActionMarkAsSpam  = "markAsSpam"
	ActionAutoReply   = "autoReply"
)

var knownActions = map[string]bool{
	ActionSetPriority: true,
	ActionAssignTo:    true,
	ActionAddLabels:   true,
	ActionSetTaskType: true,
	ActionMarkAsSpam:  true,
	ActionAutoReply:   true,
}

func decodeString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("expected a string value: %w", err)
	}
	return s, nil
}

// decodeUserID accepts a JSON number or a numeric string.
func decodeUserID(raw json.RawMessage) (uint, error) {
	var n uint
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	s, err := decodeString(raw)
	if err != nil {
		return 0, fmt.Errorf("expected a user id: %w", err)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected a user id: %w", err)
	}
	return uint(id), nil
}

// decodeLabels accepts a single label or a list of labels.
func decodeLabels(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		s, serr := decodeString(raw)
		if serr != nil {
			return nil, fmt.Errorf("expected a label or list of labels: %w", err)
		}
		list = []string{s}
	}
	out := list[:0]
	for _, l := range list {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out, nil
}
