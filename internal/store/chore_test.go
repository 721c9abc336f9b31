package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/assignment"
	"github.com/dukerupert/chorely/internal/chore"
	"github.com/dukerupert/chorely/internal/model"
)

var t0 = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func newTestChore(name string) *model.Chore {
	next := t0.AddDate(0, 0, 1)
	return &model.Chore{
		Name:              name,
		PeriodType:        model.PeriodDaily,
		AssignmentType:    model.AssignmentNone,
		NextExecutionDate: &next,
		CreatedAt:         t0,
		UpdatedAt:         t0,
	}
}

func TestChoreInsertLoad(t *testing.T) {
	cs := NewChoreStore(setupTestDB(t))
	ctx := context.Background()

	c := newTestChore("Dishes")
	c.Description = "after dinner"
	if err := cs.Insert(ctx, c); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if c.ID == 0 || c.Version != 1 {
		t.Fatalf("id = %d, version = %d", c.ID, c.Version)
	}

	got, history, err := cs.Load(ctx, c.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Name != "Dishes" || got.Description != "after dinner" {
		t.Errorf("got %q/%q", got.Name, got.Description)
	}
	if got.NextExecutionDate == nil || !got.NextExecutionDate.Equal(*c.NextExecutionDate) {
		t.Errorf("next_execution_date = %v, want %v", got.NextExecutionDate, c.NextExecutionDate)
	}
	if got.NextExecutionAssignedToUserID != nil {
		t.Errorf("assignee = %v, want nil", *got.NextExecutionAssignedToUserID)
	}
	if len(history) != 0 {
		t.Errorf("history len = %d, want 0", len(history))
	}
}

func TestChoreLoadNotFound(t *testing.T) {
	cs := NewChoreStore(setupTestDB(t))

	_, _, err := cs.Load(context.Background(), 99)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
	_, err = cs.LoadLogEntry(context.Background(), 99)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestChoreSaveWithLogEntry(t *testing.T) {
	cs := NewChoreStore(setupTestDB(t))
	ctx := context.Background()

	c := newTestChore("Trash")
	if err := cs.Insert(ctx, c); err != nil {
		t.Fatalf("insert: %v", err)
	}

	tracked := t0.Add(time.Hour)
	doneBy := int64(2)
	entry := &model.ChoreLogEntry{ChoreID: c.ID, TrackedTime: &tracked, DoneByUserID: &doneBy, CreatedAt: tracked}
	next := t0.AddDate(0, 0, 2)
	c.NextExecutionDate = &next
	if err := cs.Save(ctx, c, entry); err != nil {
		t.Fatalf("save: %v", err)
	}
	if c.Version != 2 {
		t.Errorf("version = %d, want 2", c.Version)
	}
	if entry.ID == 0 {
		t.Fatal("expected entry id to be set")
	}

	// Tombstone the entry
	undoneAt := t0.Add(2 * time.Hour)
	entry.Undone = true
	entry.UndoneTimestamp = &undoneAt
	if err := cs.Save(ctx, c, entry); err != nil {
		t.Fatalf("save undo: %v", err)
	}

	got, err := cs.LoadLogEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("load log entry: %v", err)
	}
	if !got.Undone || got.UndoneTimestamp == nil || !got.UndoneTimestamp.Equal(undoneAt) {
		t.Errorf("undone = %v at %v", got.Undone, got.UndoneTimestamp)
	}
	if got.DoneByUserID == nil || *got.DoneByUserID != 2 {
		t.Errorf("done_by = %v, want 2", got.DoneByUserID)
	}

	_, history, err := cs.Load(ctx, c.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history len = %d, want 1", len(history))
	}
}

func TestChoreSaveVersionConflict(t *testing.T) {
	cs := NewChoreStore(setupTestDB(t))
	ctx := context.Background()

	c := newTestChore("Laundry")
	if err := cs.Insert(ctx, c); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stale := *c
	if err := cs.Save(ctx, c, nil); err != nil {
		t.Fatalf("first save: %v", err)
	}

	entry := &model.ChoreLogEntry{ChoreID: c.ID, TrackedTime: &t0, CreatedAt: t0}
	err := cs.Save(ctx, &stale, entry)
	if !errors.Is(err, apperror.ErrConcurrentModification) {
		t.Fatalf("err = %v, want ConcurrentModification", err)
	}
	if stale.Version != 1 {
		t.Errorf("stale version changed to %d", stale.Version)
	}

	// The rejected log entry must not have been written
	_, history, err := cs.Load(ctx, c.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history len = %d, want 0", len(history))
	}

	missing := newTestChore("Ghost")
	missing.ID = 404
	missing.Version = 1
	if err := cs.Save(ctx, missing, nil); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestChoreDeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	cs := NewChoreStore(db)
	ctx := context.Background()

	c := newTestChore("Mop")
	if err := cs.Insert(ctx, c); err != nil {
		t.Fatalf("insert: %v", err)
	}
	entry := &model.ChoreLogEntry{ChoreID: c.ID, TrackedTime: &t0, CreatedAt: t0}
	if err := cs.Save(ctx, c, entry); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := cs.Delete(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM chores_log").Scan(&count); err != nil {
		t.Fatalf("count log: %v", err)
	}
	if count != 0 {
		t.Errorf("log rows = %d, want 0", count)
	}
	if err := cs.Delete(ctx, c.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second delete err = %v, want NotFound", err)
	}
}

func TestEngineExecuteUndoThroughStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	cs := NewChoreStore(db)
	ps := NewProductStore(db)
	ms := NewFamilyMemberStore(db)

	alice, err := ms.Create(ctx, "Alice")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	bob, err := ms.Create(ctx, "Bob")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	soap, err := ps.Create(ctx, "Soap", 1)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	now := t0
	engine := chore.NewEngine(chore.Config{
		Location: time.UTC,
		Now:      func() time.Time { return now },
	}, cs, ps, ms, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	c, err := engine.Create(ctx, chore.ChoreInput{
		Name:                      "Scrub tub",
		PeriodType:                model.PeriodDynamicRegular,
		PeriodDays:                3,
		AssignmentType:            model.AssignmentRoundRobin,
		AssignmentConfig:          assignment.FormatUserIDs([]int64{alice.ID, bob.ID}),
		ConsumeProductOnExecution: true,
		ProductID:                 &soap.ID,
		ProductAmount:             1,
	})
	if err != nil {
		t.Fatalf("create chore: %v", err)
	}
	before, _, err := cs.Load(ctx, c.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	now = t0.Add(30 * time.Minute)
	res, err := engine.Execute(ctx, c.ID, chore.ExecuteOptions{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Warning != nil {
		t.Errorf("unexpected warning: %v", res.Warning)
	}
	if res.Entry.DoneByUserID == nil || *res.Entry.DoneByUserID != alice.ID {
		t.Errorf("done_by = %v, want %d", res.Entry.DoneByUserID, alice.ID)
	}
	if got := *res.Chore.NextExecutionAssignedToUserID; got != bob.ID {
		t.Errorf("next assignee = %d, want %d", got, bob.ID)
	}
	p, err := ps.GetByID(ctx, soap.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.StockAmount != 0 {
		t.Errorf("stock = %g, want 0", p.StockAmount)
	}

	// Second execution runs out of stock but still records
	now = t0.Add(time.Hour)
	res2, err := engine.Execute(ctx, c.ID, chore.ExecuteOptions{})
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if !errors.Is(res2.Warning, apperror.ErrInsufficientStock) {
		t.Errorf("warning = %v, want InsufficientStock", res2.Warning)
	}

	now = t0.Add(2 * time.Hour)
	if _, err := engine.Undo(ctx, res2.Entry.ID); err != nil {
		t.Fatalf("undo second: %v", err)
	}
	if _, err := engine.Undo(ctx, res.Entry.ID); err != nil {
		t.Fatalf("undo first: %v", err)
	}

	after, _, err := cs.Load(ctx, c.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !after.NextExecutionDate.Equal(*before.NextExecutionDate) {
		t.Errorf("next_execution_date = %v, want %v", after.NextExecutionDate, before.NextExecutionDate)
	}
	if *after.NextExecutionAssignedToUserID != *before.NextExecutionAssignedToUserID {
		t.Errorf("assignee = %d, want %d", *after.NextExecutionAssignedToUserID, *before.NextExecutionAssignedToUserID)
	}

	_, err = engine.Undo(ctx, res.Entry.ID)
	if !errors.Is(err, apperror.ErrAlreadyUndone) {
		t.Errorf("err = %v, want AlreadyUndone", err)
	}
}
