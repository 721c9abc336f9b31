package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/model"
)

// ChoreStore persists chores and their log. It implements chore.Repository.
type ChoreStore struct {
	db *sql.DB
}

func NewChoreStore(db *sql.DB) *ChoreStore {
	return &ChoreStore{db: db}
}

type scanner interface{ Scan(...any) error }

const choreCols = `id, name, description, period_type, period_days, track_date_only, rollover,
	assignment_type, assignment_config, next_execution_date, next_execution_assigned_to_user_id,
	consume_product_on_execution, product_id, product_amount, version, created_at, updated_at`

func scanChore(s scanner) (*model.Chore, error) {
	var c model.Chore
	var nextDate sql.NullTime
	var assignee, productID sql.NullInt64

	err := s.Scan(
		&c.ID, &c.Name, &c.Description, &c.PeriodType, &c.PeriodDays, &c.TrackDateOnly, &c.Rollover,
		&c.AssignmentType, &c.AssignmentConfig, &nextDate, &assignee,
		&c.ConsumeProductOnExecution, &productID, &c.ProductAmount, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.NextExecutionDate = timePtr(nextDate)
	c.NextExecutionAssignedToUserID = int64Ptr(assignee)
	c.ProductID = int64Ptr(productID)
	return &c, nil
}

const logCols = `id, chore_id, tracked_time, done_by_user_id, skipped, scheduled_execution_time, undone, undone_timestamp, created_at`

func scanLogEntry(s scanner) (*model.ChoreLogEntry, error) {
	var e model.ChoreLogEntry
	var tracked, scheduled, undoneAt sql.NullTime
	var doneBy sql.NullInt64

	err := s.Scan(&e.ID, &e.ChoreID, &tracked, &doneBy, &e.Skipped, &scheduled, &e.Undone, &undoneAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	e.TrackedTime = timePtr(tracked)
	e.DoneByUserID = int64Ptr(doneBy)
	e.ScheduledExecutionTime = timePtr(scheduled)
	e.UndoneTimestamp = timePtr(undoneAt)
	return &e, nil
}

// Load returns the chore and its whole log, read in one transaction so the
// log matches the returned version.
func (s *ChoreStore) Load(ctx context.Context, choreID int64) (*model.Chore, []model.ChoreLogEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	c, err := scanChore(tx.QueryRowContext(ctx, `SELECT `+choreCols+` FROM chores WHERE id = ?`, choreID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apperror.New(apperror.KindNotFound, "load chore", fmt.Sprintf("chore %d not found", choreID))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get chore: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT `+logCols+` FROM chores_log WHERE chore_id = ? ORDER BY id ASC`, choreID)
	if err != nil {
		return nil, nil, fmt.Errorf("list chore log: %w", err)
	}
	defer rows.Close()

	var history []model.ChoreLogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan log entry: %w", err)
		}
		history = append(history, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("list chore log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return c, history, nil
}

func (s *ChoreStore) LoadLogEntry(ctx context.Context, logEntryID int64) (*model.ChoreLogEntry, error) {
	e, err := scanLogEntry(s.db.QueryRowContext(ctx, `SELECT `+logCols+` FROM chores_log WHERE id = ?`, logEntryID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.KindNotFound, "load log entry", fmt.Sprintf("log entry %d not found", logEntryID))
	}
	if err != nil {
		return nil, fmt.Errorf("get log entry: %w", err)
	}
	return e, nil
}

// Insert stores a new chore and sets its ID and initial version.
func (s *ChoreStore) Insert(ctx context.Context, c *model.Chore) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO chores (name, description, period_type, period_days, track_date_only, rollover,
			assignment_type, assignment_config, next_execution_date, next_execution_assigned_to_user_id,
			consume_product_on_execution, product_id, product_amount, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		c.Name, c.Description, c.PeriodType, c.PeriodDays, c.TrackDateOnly, c.Rollover,
		c.AssignmentType, c.AssignmentConfig, nullTime(c.NextExecutionDate), nullInt64(c.NextExecutionAssignedToUserID),
		c.ConsumeProductOnExecution, nullInt64(c.ProductID), c.ProductAmount, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert chore: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	c.Version = 1
	return nil
}

// Save writes the chore and, when entry is non-nil, inserts or updates the
// log entry, all in one transaction. The chore row is only updated if its
// stored version still equals c.Version; on success c.Version is advanced.
func (s *ChoreStore) Save(ctx context.Context, c *model.Chore, entry *model.ChoreLogEntry) error {
	const op = "save chore"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE chores SET name = ?, description = ?, period_type = ?, period_days = ?, track_date_only = ?,
			rollover = ?, assignment_type = ?, assignment_config = ?, next_execution_date = ?,
			next_execution_assigned_to_user_id = ?, consume_product_on_execution = ?, product_id = ?,
			product_amount = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		c.Name, c.Description, c.PeriodType, c.PeriodDays, c.TrackDateOnly,
		c.Rollover, c.AssignmentType, c.AssignmentConfig, nullTime(c.NextExecutionDate),
		nullInt64(c.NextExecutionAssignedToUserID), c.ConsumeProductOnExecution, nullInt64(c.ProductID),
		c.ProductAmount, c.UpdatedAt.UTC(),
		c.ID, c.Version,
	)
	if err != nil {
		return fmt.Errorf("update chore: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM chores WHERE id = ?`, c.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.New(apperror.KindNotFound, op, fmt.Sprintf("chore %d not found", c.ID))
		}
		if err != nil {
			return fmt.Errorf("check chore: %w", err)
		}
		return apperror.New(apperror.KindConcurrentModification, op, fmt.Sprintf("chore %d changed since version %d", c.ID, c.Version))
	}

	var newEntryID int64
	if entry != nil {
		if entry.ID == 0 {
			newEntryID, err = insertLogEntry(ctx, tx, entry)
			if err != nil {
				return err
			}
		} else if err := updateLogEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	c.Version++
	if newEntryID != 0 {
		entry.ID = newEntryID
	}
	return nil
}

func insertLogEntry(ctx context.Context, tx *sql.Tx, e *model.ChoreLogEntry) (int64, error) {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO chores_log (chore_id, tracked_time, done_by_user_id, skipped, scheduled_execution_time, undone, undone_timestamp, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ChoreID, nullTime(e.TrackedTime), nullInt64(e.DoneByUserID), e.Skipped,
		nullTime(e.ScheduledExecutionTime), e.Undone, nullTime(e.UndoneTimestamp), e.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert log entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// updateLogEntry only touches the undo tombstone; everything else in a log
// entry is immutable.
func updateLogEntry(ctx context.Context, tx *sql.Tx, e *model.ChoreLogEntry) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE chores_log SET undone = ?, undone_timestamp = ? WHERE id = ? AND chore_id = ?`,
		e.Undone, nullTime(e.UndoneTimestamp), e.ID, e.ChoreID,
	)
	if err != nil {
		return fmt.Errorf("update log entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperror.New(apperror.KindNotFound, "update log entry", fmt.Sprintf("log entry %d not found", e.ID))
	}
	return nil
}

func (s *ChoreStore) List(ctx context.Context) ([]model.Chore, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+choreCols+` FROM chores ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}
	defer rows.Close()

	var chores []model.Chore
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chore: %w", err)
		}
		chores = append(chores, *c)
	}
	return chores, rows.Err()
}

// Delete removes a chore and, through the foreign key, its log.
func (s *ChoreStore) Delete(ctx context.Context, choreID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chores WHERE id = ?`, choreID)
	if err != nil {
		return fmt.Errorf("delete chore: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperror.New(apperror.KindNotFound, "delete chore", fmt.Sprintf("chore %d not found", choreID))
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
