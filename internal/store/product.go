package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/model"
)

// ProductStore holds the stock levels chores consume from. It implements
// chore.StockConsumer.
type ProductStore struct {
	db *sql.DB
}

func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{db: db}
}

func (s *ProductStore) Create(ctx context.Context, name string, stock float64) (*model.Product, error) {
	if stock < 0 {
		return nil, apperror.New(apperror.KindValidation, "create product", "stock_amount must not be negative")
	}
	result, err := s.db.ExecContext(ctx, "INSERT INTO products (name, stock_amount) VALUES (?, ?)", name, stock)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ProductStore) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, stock_amount, created_at, updated_at FROM products WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.StockAmount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.KindNotFound, "get product", fmt.Sprintf("product %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (s *ProductStore) List(ctx context.Context) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, stock_amount, created_at, updated_at FROM products ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.StockAmount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// AddStock increases a product's stock by amount.
func (s *ProductStore) AddStock(ctx context.Context, id int64, amount float64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock_amount = stock_amount + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		amount, id,
	)
	if err != nil {
		return fmt.Errorf("add stock: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperror.New(apperror.KindNotFound, "add stock", fmt.Sprintf("product %d not found", id))
	}
	return nil
}

// ConsumeStock decrements stock atomically. It fails with InsufficientStock
// rather than letting the amount go negative.
func (s *ProductStore) ConsumeStock(ctx context.Context, productID int64, amount float64) error {
	const op = "consume stock"
	result, err := s.db.ExecContext(ctx,
		`UPDATE products SET stock_amount = stock_amount - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND stock_amount >= ?`,
		amount, productID, amount,
	)
	if err != nil {
		return fmt.Errorf("consume stock: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	p, err := s.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	return apperror.New(apperror.KindInsufficientStock, op,
		fmt.Sprintf("%s has %g in stock, %g needed", p.Name, p.StockAmount, amount))
}
