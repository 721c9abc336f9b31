// Package recurrence computes when a chore next falls due from its period policy.
package recurrence

import (
	"time"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/model"
)

const day = 24 * time.Hour

// Period is the scheduling configuration of a chore.
type Period struct {
	Type          model.PeriodType
	Days          int
	Rollover      bool
	TrackDateOnly bool
}

// PeriodOf extracts the period configuration from a chore.
func PeriodOf(c *model.Chore) Period {
	return Period{
		Type:          c.PeriodType,
		Days:          c.PeriodDays,
		Rollover:      c.Rollover,
		TrackDateOnly: c.TrackDateOnly,
	}
}

// Validate rejects unknown period types and missing day counts.
func (p Period) Validate() error {
	if !p.Type.Valid() {
		return apperror.New(apperror.KindConfiguration, "recurrence", "unknown period type "+string(p.Type))
	}
	if p.Type.UsesPeriodDays() && p.Days <= 0 {
		return apperror.New(apperror.KindConfiguration, "recurrence", string(p.Type)+" requires positive period days")
	}
	return nil
}

// stepDays is the length of one period in days, or 0 for manual chores.
func (p Period) stepDays() int {
	switch p.Type {
	case model.PeriodDaily:
		return 1
	case model.PeriodWeekly:
		return 7
	case model.PeriodDynamicRegular, model.PeriodMonthly:
		// "monthly" is a day count, not a calendar month.
		return p.Days
	}
	return 0
}

// ComputeNext returns the next due time for a chore last completed at
// lastCompletion, evaluated at reference. It returns nil for manual chores.
//
// Without rollover a result earlier than reference is pushed forward by whole
// periods until it is not. With rollover the result is returned as computed,
// possibly in the past. When TrackDateOnly is set both the result and the
// comparison use day granularity.
func ComputeNext(p Period, reference time.Time, lastCompletion *time.Time) *time.Time {
	days := p.stepDays()
	if days <= 0 {
		return nil
	}

	base := reference
	if lastCompletion != nil {
		base = *lastCompletion
	}
	next := base.AddDate(0, 0, days)

	ref := reference
	if p.TrackDateOnly {
		next = StartOfDay(next)
		ref = StartOfDay(ref)
	}

	if !p.Rollover && next.Before(ref) {
		// Jump most of the gap at once, then settle with whole periods.
		if n := int(ref.Sub(next) / (time.Duration(days) * day)); n > 1 {
			next = next.AddDate(0, 0, (n-1)*days)
		}
		for next.Before(ref) {
			next = next.AddDate(0, 0, days)
		}
	}

	return &next
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
