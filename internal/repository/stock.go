package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stockpulse/internal/model"
)

type stockRepository struct {
	db *sqlx.DB
}

func NewStockRepository(db *sqlx.DB) StockRepository {
	return &stockRepository{db: db}
}

func (r *stockRepository) GetByID(ctx context.Context, id int64) (*model.Stock, error) {
	query := `SELECT id, symbol, symbol_name FROM stocks WHERE id = $1`
	var s model.Stock
	err := r.db.GetContext(ctx, &s, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrStockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return &s, nil
}

// FindNotifiableUsers returns users who bookmarked the stock and have
// notifications enabled for that bookmark.
func (r *stockRepository) FindNotifiableUsers(ctx context.Context, stockID int64) ([]model.User, error) {
	query := `
		SELECT u.id, u.email, u.nickname, u.is_active, u.created_at
		FROM bookmarks b
		JOIN users u ON u.id = b.user_id
		WHERE b.stock_id = $1 AND b.notification_enabled = true AND u.is_active = true
	`
	var users []model.User
	if err := r.db.SelectContext(ctx, &users, query, stockID); err != nil {
		return nil, fmt.Errorf("find notifiable users: %w", err)
	}
	return users, nil
}
