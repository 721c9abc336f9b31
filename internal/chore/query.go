package chore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/chorely/internal/model"
)

type SortKey string

const (
	SortByID                SortKey = "id"
	SortByName              SortKey = "name"
	SortByNextExecutionDate SortKey = "next_execution_date"
	SortByCreatedAt         SortKey = "created_at"
)

// Filter selects and orders chores for listing. Zero values match everything.
type Filter struct {
	Search      string
	PeriodType  model.PeriodType
	OverdueOnly bool
	AssignedTo  *int64
	Sort        SortKey
	Descending  bool
}

// List returns the chores matching f.
func (e *Engine) List(ctx context.Context, f Filter) ([]model.Chore, error) {
	chores, err := e.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return ApplyFilter(chores, f, e.clock()), nil
}

// ApplyFilter filters and sorts chores. Chores without a due date sort after
// dated ones in ascending order.
func ApplyFilter(chores []model.Chore, f Filter, now time.Time) []model.Chore {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]model.Chore, 0, len(chores))
	for _, c := range chores {
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Description), search) {
			continue
		}
		if f.PeriodType != "" && c.PeriodType != f.PeriodType {
			continue
		}
		if f.OverdueOnly && !IsOverdue(&c, now) {
			continue
		}
		if f.AssignedTo != nil && (c.NextExecutionAssignedToUserID == nil || *c.NextExecutionAssignedToUserID != *f.AssignedTo) {
			continue
		}
		out = append(out, c)
	}

	less := lessFunc(f.Sort)
	sort.SliceStable(out, func(i, j int) bool {
		if f.Descending {
			return less(&out[j], &out[i])
		}
		return less(&out[i], &out[j])
	})
	return out
}

func lessFunc(key SortKey) func(a, b *model.Chore) bool {
	switch key {
	case SortByName:
		return func(a, b *model.Chore) bool {
			an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
			if an != bn {
				return an < bn
			}
			return a.ID < b.ID
		}
	case SortByNextExecutionDate:
		return func(a, b *model.Chore) bool {
			switch {
			case a.NextExecutionDate == nil && b.NextExecutionDate == nil:
				return a.ID < b.ID
			case a.NextExecutionDate == nil:
				return false
			case b.NextExecutionDate == nil:
				return true
			case !a.NextExecutionDate.Equal(*b.NextExecutionDate):
				return a.NextExecutionDate.Before(*b.NextExecutionDate)
			}
			return a.ID < b.ID
		}
	case SortByCreatedAt:
		return func(a, b *model.Chore) bool {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		}
	}
	return func(a, b *model.Chore) bool { return a.ID < b.ID }
}

// Log returns a chore's log in insertion order. Undone entries are included
// only when includeUndone is set.
func (e *Engine) Log(ctx context.Context, choreID int64, includeUndone bool) ([]model.ChoreLogEntry, error) {
	_, history, err := e.repo.Load(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if includeUndone {
		return history, nil
	}
	return activeEntries(history), nil
}

// Details summarizes a chore and its active history.
type Details struct {
	Chore            model.Chore `json:"chore"`
	Status           Status      `json:"status"`
	LastTrackedTime  *time.Time  `json:"last_tracked_time"`
	LastDoneByUserID *int64      `json:"last_done_by_user_id"`
	TrackedCount     int         `json:"tracked_count"`
	SkippedCount     int         `json:"skipped_count"`
}

func (e *Engine) Details(ctx context.Context, choreID int64) (*Details, error) {
	c, history, err := e.repo.Load(ctx, choreID)
	if err != nil {
		return nil, err
	}
	d := &Details{Chore: *c, Status: ComputeStatus(c, e.clock())}
	for _, entry := range activeEntries(history) {
		if entry.Skipped {
			d.SkippedCount++
			continue
		}
		d.TrackedCount++
		if entry.TrackedTime != nil && (d.LastTrackedTime == nil || !entry.TrackedTime.Before(*d.LastTrackedTime)) {
			d.LastTrackedTime = copyTime(entry.TrackedTime)
			d.LastDoneByUserID = copyID(entry.DoneByUserID)
		}
	}
	return d, nil
}
