package chore

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/chorely/internal/model"
)

// Repository loads and stores chores and their log. Save must apply the chore
// update and the log write atomically, rejecting the write with a
// concurrent-modification error when c.Version no longer matches the stored
// row. On success Save increments c.Version and assigns entry.ID for new
// entries.
type Repository interface {
	// Load returns the chore and its full log in insertion order.
	Load(ctx context.Context, choreID int64) (*model.Chore, []model.ChoreLogEntry, error)
	LoadLogEntry(ctx context.Context, logEntryID int64) (*model.ChoreLogEntry, error)
	Save(ctx context.Context, c *model.Chore, entry *model.ChoreLogEntry) error
	Insert(ctx context.Context, c *model.Chore) error
	List(ctx context.Context) ([]model.Chore, error)
}

// StockConsumer books product consumption against inventory.
type StockConsumer interface {
	ConsumeStock(ctx context.Context, productID int64, amount float64) error
}

// UserDirectory lists the users eligible for chore assignment, in a stable order.
type UserDirectory interface {
	EligibleUserIDs(ctx context.Context) ([]int64, error)
}

// EventKind names the committed change an Event reports.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventUpdated  EventKind = "updated"
	EventExecuted EventKind = "executed"
	EventSkipped  EventKind = "skipped"
	EventUndone   EventKind = "undone"
)

// Event describes a committed change to a chore.
type Event struct {
	Kind             EventKind
	Chore            model.Chore
	Entry            *model.ChoreLogEntry
	PreviousAssignee *int64
	At               time.Time
}

// AssigneeChanged reports whether the event moved the chore to a different user.
func (ev Event) AssigneeChanged() bool {
	next := ev.Chore.NextExecutionAssignedToUserID
	prev := ev.PreviousAssignee
	if next == nil || prev == nil {
		return next != prev
	}
	return *next != *prev
}

// Notifier is told about committed changes. Delivery is best effort;
// implementations log their own failures.
type Notifier interface {
	ChoreChanged(ctx context.Context, ev Event)
}

// Notifiers fans an event out to several notifiers in order.
type Notifiers []Notifier

func (ns Notifiers) ChoreChanged(ctx context.Context, ev Event) {
	for _, n := range ns {
		if n != nil {
			n.ChoreChanged(ctx, ev)
		}
	}
}

// LogNotifier records events in the log. Useful when nothing else listens.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) ChoreChanged(ctx context.Context, ev Event) {
	n.Logger.DebugContext(ctx, "chore event", "kind", ev.Kind, "chore_id", ev.Chore.ID)
}
