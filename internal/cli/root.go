// Package cli implements chorectl, the admin command line for a chorely
// database.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/dukerupert/chorely/internal/chore"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/store"
)

// Context is passed to every command's Run method.
type Context struct {
	Ctx      context.Context
	Engine   *chore.Engine
	Location *time.Location
	Products *store.ProductStore
	Members  *store.FamilyMemberStore
	Out      io.Writer
	Retries  uint64
}

// CLI is the chorectl command tree.
type CLI struct {
	Version  kong.VersionFlag
	DB       string `help:"SQLite database path." type:"path" default:"chorely.db" env:"CHORELY_DB_PATH"`
	Timezone string `help:"Timezone for scheduling." default:"Local" env:"CHORELY_TIMEZONE"`

	List    ListCmd    `cmd:"" help:"List chores."`
	Add     AddCmd     `cmd:"" help:"Create a chore."`
	Execute ExecuteCmd `cmd:"" help:"Record that a chore was done."`
	Skip    SkipCmd    `cmd:"" help:"Skip the next occurrence of a chore."`
	Undo    UndoCmd    `cmd:"" help:"Undo a log entry."`
	Log     LogCmd     `cmd:"" help:"Show a chore's log."`
	Product struct {
		Add  ProductAddCmd  `cmd:"" help:"Add a product with initial stock."`
		List ProductListCmd `cmd:"" help:"List products."`
	} `cmd:"" help:"Manage products."`
	Member struct {
		Add  MemberAddCmd  `cmd:"" help:"Add a household member."`
		List MemberListCmd `cmd:"" help:"List household members."`
	} `cmd:"" help:"Manage household members."`
}

// retry runs a state transition with the configured retry budget.
func (c *Context) retry(fn func(ctx context.Context) (*chore.Result, error)) (*chore.Result, error) {
	var res *chore.Result
	err := chore.Retry(c.Ctx, c.Retries, func(ctx context.Context) error {
		var err error
		res, err = fn(ctx)
		return err
	})
	return res, err
}

func (c *Context) printResult(verb string, res *chore.Result) {
	fmt.Fprintf(c.Out, "✓ %s %q (log #%d)\n", verb, res.Chore.Name, res.Entry.ID)
	fmt.Fprintf(c.Out, "  next: %s\n", formatNext(res.Chore))
	if res.Warning != nil {
		fmt.Fprintf(c.Out, "  warning: %v\n", res.Warning)
	}
}

func formatNext(c *model.Chore) string {
	if c.NextExecutionDate == nil {
		return "manual"
	}
	s := formatTime(*c.NextExecutionDate, c.TrackDateOnly)
	if c.NextExecutionAssignedToUserID != nil {
		s += fmt.Sprintf(" (user %d)", *c.NextExecutionAssignedToUserID)
	}
	return s
}

func formatTime(t time.Time, dateOnly bool) string {
	if dateOnly {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04")
}

func formatUser(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}

// parseTime accepts RFC 3339 or a bare date in loc.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}
