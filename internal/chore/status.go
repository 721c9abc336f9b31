package chore

import (
	"time"

	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/recurrence"
)

type Status string

const (
	StatusManual    Status = "manual"
	StatusOverdue   Status = "overdue"
	StatusDueToday  Status = "due_today"
	StatusScheduled Status = "scheduled"
)

// IsOverdue reports whether the chore's due date is strictly before now.
// Date-only chores are compared by day.
func IsOverdue(c *model.Chore, now time.Time) bool {
	if c.NextExecutionDate == nil {
		return false
	}
	due := *c.NextExecutionDate
	if c.TrackDateOnly {
		return recurrence.StartOfDay(due.In(now.Location())).Before(recurrence.StartOfDay(now))
	}
	return due.Before(now)
}

// ComputeStatus classifies a chore relative to now.
func ComputeStatus(c *model.Chore, now time.Time) Status {
	if c.NextExecutionDate == nil {
		return StatusManual
	}
	if IsOverdue(c, now) {
		return StatusOverdue
	}
	today := recurrence.StartOfDay(now)
	if c.NextExecutionDate.In(now.Location()).Before(today.AddDate(0, 0, 1)) {
		return StatusDueToday
	}
	return StatusScheduled
}
