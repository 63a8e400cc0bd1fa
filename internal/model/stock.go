package model

import "errors"

// Stock is the minimal stock entity consumed by alert messages.
type Stock struct {
	ID         int64  `db:"id" json:"id"`
	Symbol     string `db:"symbol" json:"symbol"`
	SymbolName string `db:"symbol_name" json:"symbol_name"`
}

// Bookmark links a user to a stock they follow. notification_enabled gates
// whether score alerts for that stock reach the user.
type Bookmark struct {
	ID                  int64 `db:"id" json:"id"`
	UserID              int64 `db:"user_id" json:"user_id"`
	StockID             int64 `db:"stock_id" json:"stock_id"`
	NotificationEnabled bool  `db:"notification_enabled" json:"notification_enabled"`
}

// ErrStockNotFound is returned when a stock cannot be found
var ErrStockNotFound = errors.New("stock not found")
