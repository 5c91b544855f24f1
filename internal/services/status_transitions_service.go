package services

import "taskagent/internal/models"

// TaskTransitions lists the statuses reachable by an explicit update.
// over_due is normally set by the sweep; a manual move there is also checked
// against the due date in checkTransition.
var TaskTransitions = map[models.TaskStatus]map[models.TaskStatus]bool{
	models.StatusPending:    {models.StatusInProgress: true, models.StatusCompleted: true, models.StatusOverDue: true},
	models.StatusInProgress: {models.StatusPending: true, models.StatusCompleted: true, models.StatusOverDue: true},
	models.StatusCompleted:  {models.StatusPending: true, models.StatusInProgress: true},
	models.StatusOverDue:    {models.StatusPending: true, models.StatusInProgress: true, models.StatusCompleted: true},
}

func canTransition(current, to models.TaskStatus, table map[models.TaskStatus]map[models.TaskStatus]bool) bool {
	if current == "" {
		return true
	}
	nexts, ok := table[current]
	if !ok {
		return false
	}
	return nexts[to]
}
