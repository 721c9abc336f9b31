package cli

import (
	"context"
	"fmt"

	"github.com/dukerupert/chorely/internal/chore"
	"github.com/dukerupert/chorely/internal/model"
)

type ListCmd struct {
	Overdue    bool   `help:"Show only overdue chores."`
	AssignedTo int64  `help:"Show only chores assigned to this user." name:"assigned-to"`
	Search     string `help:"Case-insensitive name/description filter." short:"q"`
	Sort       string `help:"Sort key." enum:"id,name,next_execution_date,created_at" default:"id"`
}

func (c *ListCmd) Run(ctx *Context) error {
	f := chore.Filter{
		Search:      c.Search,
		OverdueOnly: c.Overdue,
		Sort:        chore.SortKey(c.Sort),
	}
	if c.AssignedTo != 0 {
		f.AssignedTo = &c.AssignedTo
	}
	chores, err := ctx.Engine.List(ctx.Ctx, f)
	if err != nil {
		return err
	}
	if len(chores) == 0 {
		fmt.Fprintln(ctx.Out, "No chores found")
		return nil
	}

	now := ctx.Engine.Now()
	for _, ch := range chores {
		fmt.Fprintf(ctx.Out, "  #%-4d %-24s %-16s %-10s next: %s\n",
			ch.ID, ch.Name, ch.PeriodType, chore.ComputeStatus(&ch, now), formatNext(&ch))
	}
	return nil
}

type AddCmd struct {
	Name          string               `arg:"" help:"Chore name."`
	Period        model.PeriodType     `help:"Period type." enum:"manually,dynamic-regular,daily,weekly,monthly" default:"daily"`
	Days          int                  `help:"Period length in days for dynamic-regular and monthly."`
	Rollover      bool                 `help:"Keep a missed due date instead of moving it forward."`
	DateOnly      bool                 `help:"Track dates without time of day." name:"date-only"`
	Assignment    model.AssignmentType `help:"Assignment policy." default:"none"`
	Users         string               `help:"Comma-separated user ids for the assignment policy."`
	Product       int64                `help:"Product consumed on execution."`
	ProductAmount float64              `help:"Amount consumed on execution." name:"product-amount" default:"1"`
}

func (c *AddCmd) Run(ctx *Context) error {
	in := chore.ChoreInput{
		Name:             c.Name,
		PeriodType:       c.Period,
		PeriodDays:       c.Days,
		Rollover:         c.Rollover,
		TrackDateOnly:    c.DateOnly,
		AssignmentType:   c.Assignment,
		AssignmentConfig: c.Users,
	}
	if c.Product != 0 {
		in.ConsumeProductOnExecution = true
		in.ProductID = &c.Product
		in.ProductAmount = c.ProductAmount
	}

	ch, err := ctx.Engine.Create(ctx.Ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ Created chore #%d %q\n", ch.ID, ch.Name)
	fmt.Fprintf(ctx.Out, "  next: %s\n", formatNext(ch))
	return nil
}

type ExecuteCmd struct {
	ID     int64  `arg:"" help:"Chore id."`
	DoneBy int64  `help:"User who did the chore." name:"done-by"`
	At     string `help:"When it was done (RFC 3339 or YYYY-MM-DD). Defaults to now."`
}

func (c *ExecuteCmd) Run(ctx *Context) error {
	var opts chore.ExecuteOptions
	if c.DoneBy != 0 {
		opts.DoneBy = &c.DoneBy
	}
	if c.At != "" {
		t, err := parseTime(c.At, ctx.Location)
		if err != nil {
			return err
		}
		opts.TrackedTime = &t
	}

	res, err := ctx.retry(func(rctx context.Context) (*chore.Result, error) {
		return ctx.Engine.Execute(rctx, c.ID, opts)
	})
	if err != nil {
		return err
	}
	ctx.printResult("Executed", res)
	return nil
}

type SkipCmd struct {
	ID int64 `arg:"" help:"Chore id."`
}

func (c *SkipCmd) Run(ctx *Context) error {
	res, err := ctx.retry(func(rctx context.Context) (*chore.Result, error) {
		return ctx.Engine.Skip(rctx, c.ID, nil)
	})
	if err != nil {
		return err
	}
	ctx.printResult("Skipped", res)
	return nil
}

type UndoCmd struct {
	LogID int64 `arg:"" help:"Log entry id."`
}

func (c *UndoCmd) Run(ctx *Context) error {
	res, err := ctx.retry(func(rctx context.Context) (*chore.Result, error) {
		return ctx.Engine.Undo(rctx, c.LogID)
	})
	if err != nil {
		return err
	}
	ctx.printResult("Undid", res)
	return nil
}

type LogCmd struct {
	ID  int64 `arg:"" help:"Chore id."`
	All bool  `help:"Include undone entries."`
}

func (c *LogCmd) Run(ctx *Context) error {
	entries, err := ctx.Engine.Log(ctx.Ctx, c.ID, c.All)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(ctx.Out, "No log entries")
		return nil
	}

	for _, e := range entries {
		what := "done"
		when := "-"
		if e.Skipped {
			what = "skipped"
		}
		switch {
		case e.TrackedTime != nil:
			when = formatTime(*e.TrackedTime, false)
		case e.ScheduledExecutionTime != nil:
			when = formatTime(*e.ScheduledExecutionTime, false)
		}
		line := fmt.Sprintf("  #%-4d %-8s %s by %s", e.ID, what, when, formatUser(e.DoneByUserID))
		if e.Undone {
			line += " (undone)"
		}
		fmt.Fprintln(ctx.Out, line)
	}
	return nil
}
