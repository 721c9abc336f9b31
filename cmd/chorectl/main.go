package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/dukerupert/chorely/internal/chore"
	"github.com/dukerupert/chorely/internal/cli"
	"github.com/dukerupert/chorely/internal/database"
	"github.com/dukerupert/chorely/internal/logging"
	"github.com/dukerupert/chorely/internal/store"
)

var CLI cli.CLI

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("chorectl"),
		kong.Description("Household chore scheduler admin tool"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	if err := run(kctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context) error {
	logger := logging.New(os.Stderr, "warn", "text")
	ctx := context.Background()

	loc, err := time.LoadLocation(CLI.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", CLI.Timezone, err)
	}

	db, err := database.OpenContext(ctx, CLI.DB, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	products := store.NewProductStore(db)
	members := store.NewFamilyMemberStore(db)
	engine := chore.NewEngine(chore.Config{Location: loc},
		store.NewChoreStore(db), products, members, chore.LogNotifier{Logger: logger}, logger)

	return kctx.Run(&cli.Context{
		Ctx:      ctx,
		Engine:   engine,
		Location: loc,
		Products: products,
		Members:  members,
		Out:      os.Stdout,
		Retries:  3,
	})
}
