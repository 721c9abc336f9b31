package model

import (
	"time"

	"github.com/dukerupert/chorely/internal/apperror"
)

type PeriodType string

const (
	PeriodManually       PeriodType = "manually"
	PeriodDynamicRegular PeriodType = "dynamic-regular"
	PeriodDaily          PeriodType = "daily"
	PeriodWeekly         PeriodType = "weekly"
	PeriodMonthly        PeriodType = "monthly"
)

// Valid reports whether p is one of the five known period types.
func (p PeriodType) Valid() bool {
	switch p {
	case PeriodManually, PeriodDynamicRegular, PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// UsesPeriodDays reports whether the period is a day count taken from PeriodDays.
func (p PeriodType) UsesPeriodDays() bool {
	return p == PeriodDynamicRegular || p == PeriodMonthly
}

type AssignmentType string

// Built-in assignment policies. The set is open; see the assignment package.
const (
	AssignmentNone              AssignmentType = "none"
	AssignmentSingleUser        AssignmentType = "single-user"
	AssignmentRoundRobin        AssignmentType = "round-robin"
	AssignmentLeastRecentlyDone AssignmentType = "least-recently-done"
)

type Chore struct {
	ID                            int64          `json:"id"`
	Name                          string         `json:"name"`
	Description                   string         `json:"description"`
	PeriodType                    PeriodType     `json:"period_type"`
	PeriodDays                    int            `json:"period_days"`
	TrackDateOnly                 bool           `json:"track_date_only"`
	Rollover                      bool           `json:"rollover"`
	AssignmentType                AssignmentType `json:"assignment_type"`
	AssignmentConfig              string         `json:"assignment_config"`
	NextExecutionDate             *time.Time     `json:"next_execution_date"`
	NextExecutionAssignedToUserID *int64         `json:"next_execution_assigned_to_user_id"`
	ConsumeProductOnExecution     bool           `json:"consume_product_on_execution"`
	ProductID                     *int64         `json:"product_id"`
	ProductAmount                 float64        `json:"product_amount"`
	Version                       int64          `json:"version"`
	CreatedAt                     time.Time      `json:"created_at"`
	UpdatedAt                     time.Time      `json:"updated_at"`
}

// Validate checks the configuration invariants that must hold before the
// engine schedules the chore.
func (c *Chore) Validate() error {
	const op = "validate chore"
	if c.Name == "" {
		return apperror.New(apperror.KindValidation, op, "name is required")
	}
	if !c.PeriodType.Valid() {
		return apperror.New(apperror.KindValidation, op, "unknown period_type "+string(c.PeriodType))
	}
	if c.PeriodType.UsesPeriodDays() && c.PeriodDays <= 0 {
		return apperror.New(apperror.KindValidation, op, "period_days must be positive for "+string(c.PeriodType))
	}
	if c.AssignmentType == "" {
		return apperror.New(apperror.KindValidation, op, "assignment_type is required")
	}
	if c.ConsumeProductOnExecution {
		if c.ProductID == nil {
			return apperror.New(apperror.KindValidation, op, "product_id is required when consuming stock")
		}
		if c.ProductAmount <= 0 {
			return apperror.New(apperror.KindValidation, op, "product_amount must be positive when consuming stock")
		}
	}
	return nil
}

type ChoreLogEntry struct {
	ID                     int64      `json:"id"`
	ChoreID                int64      `json:"chore_id"`
	TrackedTime            *time.Time `json:"tracked_time"`
	DoneByUserID           *int64     `json:"done_by_user_id"`
	Skipped                bool       `json:"skipped"`
	ScheduledExecutionTime *time.Time `json:"scheduled_execution_time"`
	Undone                 bool       `json:"undone"`
	UndoneTimestamp        *time.Time `json:"undone_timestamp"`
	CreatedAt              time.Time  `json:"created_at"`
}
