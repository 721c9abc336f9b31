package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/model"
)

// FamilyMemberStore lists the household users chores can be assigned to.
// It implements chore.UserDirectory.
type FamilyMemberStore struct {
	db *sql.DB
}

func NewFamilyMemberStore(db *sql.DB) *FamilyMemberStore {
	return &FamilyMemberStore{db: db}
}

func (s *FamilyMemberStore) Create(ctx context.Context, name string) (*model.FamilyMember, error) {
	var maxOrder int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(sort_order), -1) FROM family_members").Scan(&maxOrder)
	if err != nil {
		return nil, fmt.Errorf("query max sort_order: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO family_members (name, sort_order) VALUES (?, ?)",
		name, maxOrder+1,
	)
	if err != nil {
		return nil, fmt.Errorf("insert family member: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	var m model.FamilyMember
	err = s.db.QueryRowContext(ctx,
		"SELECT id, name, sort_order, created_at, updated_at FROM family_members WHERE id = ?", id,
	).Scan(&m.ID, &m.Name, &m.SortOrder, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get family member: %w", err)
	}
	return &m, nil
}

func (s *FamilyMemberStore) List(ctx context.Context) ([]model.FamilyMember, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, sort_order, created_at, updated_at FROM family_members ORDER BY sort_order, id",
	)
	if err != nil {
		return nil, fmt.Errorf("query family members: %w", err)
	}
	defer rows.Close()

	var members []model.FamilyMember
	for rows.Next() {
		var m model.FamilyMember
		if err := rows.Scan(&m.ID, &m.Name, &m.SortOrder, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan family member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// EligibleUserIDs returns member ids in household display order.
func (s *FamilyMemberStore) EligibleUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM family_members ORDER BY sort_order, id")
	if err != nil {
		return nil, fmt.Errorf("query family member ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan family member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *FamilyMemberStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM family_members WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete family member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperror.New(apperror.KindNotFound, "delete family member", fmt.Sprintf("family member %d not found", id))
	}
	return nil
}
