package model

import "time"

// Product is the slice of the inventory a chore can consume on execution.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	StockAmount float64   `json:"stock_amount"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
