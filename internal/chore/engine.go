// Package chore runs the chore state machine: executing, skipping and undoing
// occurrences, and keeping each chore's next due date and assignee current.
package chore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/assignment"
	"github.com/dukerupert/chorely/internal/auth"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/recurrence"
)

// Config tunes an Engine. Zero values fall back to defaults.
type Config struct {
	Location     *time.Location
	StockTimeout time.Duration
	Policies     *assignment.Registry
	Now          func() time.Time
}

const defaultStockTimeout = 5 * time.Second

// Engine applies Create, Update, Execute, Skip and Undo to chores, keeping
// each chore's next due date and assignee consistent with its log.
type Engine struct {
	repo     Repository
	stock    StockConsumer
	users    UserDirectory
	notifier Notifier
	policies *assignment.Registry
	loc      *time.Location
	now      func() time.Time
	timeout  time.Duration
	logger   *slog.Logger
}

// NewEngine creates an engine. stock, users and notifier may be nil.
func NewEngine(cfg Config, repo Repository, stock StockConsumer, users UserDirectory, notifier Notifier, logger *slog.Logger) *Engine {
	e := &Engine{
		repo:     repo,
		stock:    stock,
		users:    users,
		notifier: notifier,
		policies: cfg.Policies,
		loc:      cfg.Location,
		now:      cfg.Now,
		timeout:  cfg.StockTimeout,
		logger:   logger,
	}
	if e.policies == nil {
		e.policies = assignment.DefaultRegistry()
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.timeout <= 0 {
		e.timeout = defaultStockTimeout
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Result is the outcome of a state transition. Warning is set when the
// transition committed but a side effect failed.
type Result struct {
	Chore   *model.Chore
	Entry   *model.ChoreLogEntry
	Warning error
}

// ChoreInput holds the user-editable fields of a chore.
type ChoreInput struct {
	Name                      string
	Description               string
	PeriodType                model.PeriodType
	PeriodDays                int
	TrackDateOnly             bool
	Rollover                  bool
	AssignmentType            model.AssignmentType
	AssignmentConfig          string
	ConsumeProductOnExecution bool
	ProductID                 *int64
	ProductAmount             float64
}

func (in ChoreInput) applyTo(c *model.Chore) {
	c.Name = in.Name
	c.Description = in.Description
	c.PeriodType = in.PeriodType
	c.PeriodDays = in.PeriodDays
	c.TrackDateOnly = in.TrackDateOnly
	c.Rollover = in.Rollover
	c.AssignmentType = in.AssignmentType
	c.AssignmentConfig = in.AssignmentConfig
	c.ConsumeProductOnExecution = in.ConsumeProductOnExecution
	c.ProductID = copyID(in.ProductID)
	c.ProductAmount = in.ProductAmount
	if c.AssignmentType == "" {
		c.AssignmentType = model.AssignmentNone
	}
	if !c.PeriodType.UsesPeriodDays() {
		c.PeriodDays = 0
	}
}

// ExecuteOptions overrides the defaults of Execute.
type ExecuteOptions struct {
	TrackedTime *time.Time
	DoneBy      *int64
}

// clock returns the current time in the engine's location, at millisecond
// precision so it survives storage round trips unchanged.
func (e *Engine) clock() time.Time {
	return e.normalize(e.now())
}

// Now returns the engine's current time in its location.
func (e *Engine) Now() time.Time {
	return e.clock()
}

func (e *Engine) normalize(t time.Time) time.Time {
	return t.Round(0).Truncate(time.Millisecond).In(e.loc)
}

func (e *Engine) scheduler(ctx context.Context) (scheduler, error) {
	s := scheduler{policies: e.policies, loc: e.loc}
	if e.users != nil {
		ids, err := e.users.EligibleUserIDs(ctx)
		if err != nil {
			return scheduler{}, err
		}
		s.eligible = ids
	}
	return s, nil
}

// Create validates and stores a new chore with its initial schedule.
func (e *Engine) Create(ctx context.Context, in ChoreInput) (*model.Chore, error) {
	now := e.clock()
	c := &model.Chore{CreatedAt: now, UpdatedAt: now}
	in.applyTo(c)
	s, err := e.scheduler(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.validate(c, s.eligible); err != nil {
		return nil, err
	}
	st, err := s.initial(c)
	if err != nil {
		return nil, e.invariant(ctx, "create chore", c, err)
	}
	st.applyTo(c)

	if err := e.repo.Insert(ctx, c); err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "chore created", "chore_id", c.ID, "period_type", c.PeriodType)
	e.notify(ctx, EventCreated, c, nil, nil, now)
	return c, nil
}

// Update changes a chore's configuration and recomputes its schedule from
// its active history under the new configuration.
func (e *Engine) Update(ctx context.Context, choreID int64, in ChoreInput) (*model.Chore, error) {
	c, history, err := e.repo.Load(ctx, choreID)
	if err != nil {
		return nil, err
	}
	prevAssignee := copyID(c.NextExecutionAssignedToUserID)
	now := e.clock()
	in.applyTo(c)
	s, err := e.scheduler(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.validate(c, s.eligible); err != nil {
		return nil, err
	}
	st, err := s.replay(c, history)
	if err != nil {
		return nil, e.invariant(ctx, "update chore", c, err)
	}
	st.applyTo(c)
	c.UpdatedAt = now

	if err := e.repo.Save(ctx, c, nil); err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "chore updated", "chore_id", c.ID)
	e.notify(ctx, EventUpdated, c, nil, prevAssignee, now)
	return c, nil
}

// Execute records that the chore was done and advances its schedule.
func (e *Engine) Execute(ctx context.Context, choreID int64, opts ExecuteOptions) (*Result, error) {
	const op = "execute chore"
	c, history, err := e.repo.Load(ctx, choreID)
	if err != nil {
		return nil, err
	}
	now := e.clock()

	tracked := now
	if opts.TrackedTime != nil {
		tracked = e.normalize(*opts.TrackedTime)
	}
	if c.TrackDateOnly {
		tracked = recurrence.StartOfDay(tracked)
	}

	doneBy, err := e.resolveDoneBy(ctx, c, opts.DoneBy)
	if err != nil {
		return nil, err
	}

	entry := &model.ChoreLogEntry{
		ChoreID:                c.ID,
		TrackedTime:            &tracked,
		DoneByUserID:           doneBy,
		ScheduledExecutionTime: copyTime(c.NextExecutionDate),
		CreatedAt:              now,
	}
	prevAssignee, err := e.step(ctx, op, c, history, entry)
	if err != nil {
		return nil, err
	}
	if err := e.repo.Save(ctx, c, entry); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "chore executed",
		"chore_id", c.ID, "log_id", entry.ID, "done_by", doneBy, "next", c.NextExecutionDate)

	res := &Result{Chore: c, Entry: entry}
	if c.ConsumeProductOnExecution {
		res.Warning = e.consume(ctx, c)
	}
	e.notify(ctx, EventExecuted, c, entry, prevAssignee, now)
	return res, nil
}

// Skip passes over the current occurrence. The next due date is computed
// from the skipped due date, not from now, so the cadence is preserved.
func (e *Engine) Skip(ctx context.Context, choreID int64, scheduledExecutionTime *time.Time) (*Result, error) {
	const op = "skip chore"
	c, history, err := e.repo.Load(ctx, choreID)
	if err != nil {
		return nil, err
	}
	now := e.clock()

	var scheduled *time.Time
	switch {
	case scheduledExecutionTime != nil:
		t := e.normalize(*scheduledExecutionTime)
		if c.TrackDateOnly {
			t = recurrence.StartOfDay(t)
		}
		scheduled = &t
	case c.NextExecutionDate != nil:
		scheduled = copyTime(c.NextExecutionDate)
	}

	entry := &model.ChoreLogEntry{
		ChoreID:                c.ID,
		Skipped:                true,
		ScheduledExecutionTime: scheduled,
		CreatedAt:              now,
	}
	prevAssignee, err := e.step(ctx, op, c, history, entry)
	if err != nil {
		return nil, err
	}
	if err := e.repo.Save(ctx, c, entry); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "chore skipped", "chore_id", c.ID, "log_id", entry.ID, "next", c.NextExecutionDate)
	e.notify(ctx, EventSkipped, c, entry, prevAssignee, now)
	return &Result{Chore: c, Entry: entry}, nil
}

// Undo tombstones a log entry and recomputes the chore's schedule as if the
// entry had never been recorded. Stock already consumed is not restored.
func (e *Engine) Undo(ctx context.Context, logEntryID int64) (*Result, error) {
	const op = "undo chore log entry"
	target, err := e.repo.LoadLogEntry(ctx, logEntryID)
	if err != nil {
		return nil, err
	}
	c, history, err := e.repo.Load(ctx, target.ChoreID)
	if err != nil {
		return nil, err
	}

	// Check the copy loaded with the chore, it shares the chore's version.
	var entry *model.ChoreLogEntry
	for i := range history {
		if history[i].ID == logEntryID {
			entry = &history[i]
			break
		}
	}
	if entry == nil {
		return nil, apperror.New(apperror.KindNotFound, op, "log entry not found")
	}
	if entry.Undone {
		return nil, apperror.New(apperror.KindAlreadyUndone, op, "log entry already undone")
	}

	now := e.clock()
	prevAssignee := copyID(c.NextExecutionAssignedToUserID)
	entry.Undone = true
	entry.UndoneTimestamp = &now

	s, err := e.scheduler(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.replay(c, history)
	if err != nil {
		return nil, e.invariant(ctx, op, c, err)
	}
	st.applyTo(c)
	c.UpdatedAt = now

	if err := e.repo.Save(ctx, c, entry); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "chore log entry undone", "chore_id", c.ID, "log_id", entry.ID, "next", c.NextExecutionDate)
	e.notify(ctx, EventUndone, c, entry, prevAssignee, now)
	return &Result{Chore: c, Entry: entry}, nil
}

// step advances c by entry in place and returns the assignee before the step.
func (e *Engine) step(ctx context.Context, op string, c *model.Chore, history []model.ChoreLogEntry, entry *model.ChoreLogEntry) (*int64, error) {
	s, err := e.scheduler(ctx)
	if err != nil {
		return nil, err
	}
	prevAssignee := copyID(c.NextExecutionAssignedToUserID)
	st, err := s.advance(c, s.current(c, history), entry)
	if err != nil {
		return nil, e.invariant(ctx, op, c, err)
	}
	st.applyTo(c)
	c.UpdatedAt = entry.CreatedAt
	return prevAssignee, nil
}

// resolveDoneBy picks who gets credit for an execution: the explicit user,
// else the slated assignee, else (for unassigned chores) the caller.
func (e *Engine) resolveDoneBy(ctx context.Context, c *model.Chore, explicit *int64) (*int64, error) {
	if explicit != nil {
		return copyID(explicit), nil
	}
	if c.NextExecutionAssignedToUserID != nil {
		return copyID(c.NextExecutionAssignedToUserID), nil
	}
	if c.AssignmentType != model.AssignmentNone {
		return nil, apperror.New(apperror.KindAssignmentRequired, "execute chore", "no user given and none assigned")
	}
	if id, ok := auth.CurrentUser(ctx); ok {
		return &id, nil
	}
	return nil, nil
}

// validate checks the chore's own invariants, its assignment config, and
// that a least-recently-done chore without explicit users has someone to
// pick from.
func (e *Engine) validate(c *model.Chore, eligible []int64) error {
	const op = "validate chore"
	if err := c.Validate(); err != nil {
		return err
	}
	if err := e.policies.Validate(c.AssignmentType, c.AssignmentConfig); err != nil {
		return apperror.Wrap(apperror.KindValidation, op, err)
	}
	if c.AssignmentType == model.AssignmentLeastRecentlyDone && len(eligible) == 0 {
		if ids, _ := assignment.ParseUserIDs(c.AssignmentConfig); len(ids) == 0 {
			return apperror.New(apperror.KindValidation, op,
				"least-recently-done needs assignment_config users or at least one family member")
		}
	}
	return nil
}

// invariant logs configuration errors that slipped past validation. Other
// errors pass through untouched.
func (e *Engine) invariant(ctx context.Context, op string, c *model.Chore, err error) error {
	if errors.Is(err, apperror.ErrConfiguration) {
		e.logger.ErrorContext(ctx, "chore invariant violation",
			"op", op, "chore_id", c.ID, "period_type", c.PeriodType,
			"assignment_type", c.AssignmentType, "error", err)
	}
	return err
}

// consume dispatches the stock side effect of an execution. Its failure is
// returned as a warning and never undoes the execution.
func (e *Engine) consume(ctx context.Context, c *model.Chore) error {
	const op = "consume stock"
	if e.stock == nil {
		err := apperror.New(apperror.KindStockDispatch, op, "no stock service configured")
		e.logger.WarnContext(ctx, "stock consumption skipped", "chore_id", c.ID, "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err := e.stock.ConsumeStock(ctx, *c.ProductID, c.ProductAmount)
	if err == nil {
		return nil
	}
	switch apperror.KindOf(err) {
	case apperror.KindInsufficientStock, apperror.KindNotFound:
	default:
		err = apperror.Wrap(apperror.KindStockDispatch, op, err)
	}
	e.logger.WarnContext(ctx, "stock consumption failed",
		"chore_id", c.ID, "product_id", *c.ProductID, "amount", c.ProductAmount, "error", err)
	return err
}

func (e *Engine) notify(ctx context.Context, kind EventKind, c *model.Chore, entry *model.ChoreLogEntry, prevAssignee *int64, at time.Time) {
	if e.notifier == nil {
		return
	}
	e.notifier.ChoreChanged(ctx, Event{
		Kind:             kind,
		Chore:            *c,
		Entry:            entry,
		PreviousAssignee: prevAssignee,
		At:               at,
	})
}
