package chore

import (
	"time"

	"github.com/dukerupert/chorely/internal/assignment"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/recurrence"
)

// schedule is the derived scheduling state of a chore: when it is next due,
// who it is slated for, and who did it last.
type schedule struct {
	next            *time.Time
	assignee        *int64
	lastCompletions map[int64]time.Time
}

// scheduler folds log entries into a schedule. The same step function serves
// incremental updates (Execute, Skip) and full replays (Undo, Update), so
// both paths agree on the resulting state.
type scheduler struct {
	policies *assignment.Registry
	loc      *time.Location
	eligible []int64
}

// initial is the state implied by a chore with no history.
func (s scheduler) initial(c *model.Chore) (schedule, error) {
	period := recurrence.PeriodOf(c)
	if err := period.Validate(); err != nil {
		return schedule{}, err
	}
	st := schedule{lastCompletions: make(map[int64]time.Time)}
	st.next = recurrence.ComputeNext(period, c.CreatedAt.In(s.loc), nil)
	assignee, err := s.resolve(c, st, nil)
	if err != nil {
		return schedule{}, err
	}
	st.assignee = assignee
	return st, nil
}

// current reconstructs the state stored on the chore, recomputing the
// completion map from the active history.
func (s scheduler) current(c *model.Chore, history []model.ChoreLogEntry) schedule {
	st := schedule{
		next:            copyTime(c.NextExecutionDate),
		assignee:        copyID(c.NextExecutionAssignedToUserID),
		lastCompletions: make(map[int64]time.Time),
	}
	for i := range history {
		recordCompletion(st.lastCompletions, &history[i])
	}
	return st
}

// advance applies one log entry to st. Entries are replayed against their own
// CreatedAt, never the wall clock, so the fold is deterministic.
func (s scheduler) advance(c *model.Chore, st schedule, entry *model.ChoreLogEntry) (schedule, error) {
	period := recurrence.PeriodOf(c)
	if err := period.Validate(); err != nil {
		return schedule{}, err
	}

	ref := entry.CreatedAt.In(s.loc)
	var basis *time.Time
	if entry.Skipped {
		basis = inLoc(entry.ScheduledExecutionTime, s.loc)
		if basis == nil {
			basis = &ref
		}
	} else {
		basis = inLoc(entry.TrackedTime, s.loc)
	}

	completions := make(map[int64]time.Time, len(st.lastCompletions)+1)
	for k, v := range st.lastCompletions {
		completions[k] = v
	}
	recordCompletion(completions, entry)

	next := schedule{
		next:            recurrence.ComputeNext(period, ref, basis),
		lastCompletions: completions,
	}
	assignee, err := s.resolve(c, next, st.assignee)
	if err != nil {
		return schedule{}, err
	}
	next.assignee = assignee
	return next, nil
}

// replay folds the active entries of history over the initial state.
func (s scheduler) replay(c *model.Chore, history []model.ChoreLogEntry) (schedule, error) {
	st, err := s.initial(c)
	if err != nil {
		return schedule{}, err
	}
	for i := range history {
		if history[i].Undone {
			continue
		}
		st, err = s.advance(c, st, &history[i])
		if err != nil {
			return schedule{}, err
		}
	}
	return st, nil
}

func (s scheduler) resolve(c *model.Chore, st schedule, lastAssigned *int64) (*int64, error) {
	return s.policies.ResolveNext(assignment.Input{
		Type:            c.AssignmentType,
		Config:          c.AssignmentConfig,
		EligibleUsers:   s.eligible,
		LastAssigned:    lastAssigned,
		LastCompletions: st.lastCompletions,
	})
}

func (st schedule) applyTo(c *model.Chore) {
	c.NextExecutionDate = st.next
	c.NextExecutionAssignedToUserID = st.assignee
}

func recordCompletion(m map[int64]time.Time, e *model.ChoreLogEntry) {
	if e.Undone || e.Skipped || e.TrackedTime == nil || e.DoneByUserID == nil {
		return
	}
	if prev, ok := m[*e.DoneByUserID]; !ok || e.TrackedTime.After(prev) {
		m[*e.DoneByUserID] = *e.TrackedTime
	}
}

func activeEntries(history []model.ChoreLogEntry) []model.ChoreLogEntry {
	out := make([]model.ChoreLogEntry, 0, len(history))
	for _, e := range history {
		if !e.Undone {
			out = append(out, e)
		}
	}
	return out
}

func inLoc(t *time.Time, loc *time.Location) *time.Time {
	if t == nil {
		return nil
	}
	v := t.In(loc)
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
