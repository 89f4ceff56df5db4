package rules

import "task-inbox-go/internal/model"

// Decision is the aggregate of deferred outcomes applied at task creation.
type Decision struct {
	Priority   *string
	AssigneeID *uint
	TaskType   *string
	Labels     []string
}

// Aggregate folds recorded outcomes, in recording order: the first value wins
// for scalars and labels are unioned.
func Aggregate(results []model.MessageRuleResult) Decision {
	var d Decision
	for _, r := range results {
		if d.Priority == nil && r.Priority != nil {
			d.Priority = r.Priority
		}
		if d.AssigneeID == nil && r.AssigneeID != nil {
			d.AssigneeID = r.AssigneeID
		}
		if d.TaskType == nil && r.TaskType != nil {
			d.TaskType = r.TaskType
		}
		d.Labels = unionLabels(d.Labels, r.Labels)
	}
	return d
}

func unionLabels(into, add []string) []string {
	for _, l := range add {
		found := false
		for _, have := range into {
			if have == l {
				found = true
				break
			}
		}
		if !found {
			into = append(into, l)
		}
	}
	return into
}
