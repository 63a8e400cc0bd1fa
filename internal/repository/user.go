package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stockpulse/internal/model"
)

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT id, email, nickname, is_active, created_at FROM users WHERE id = $1`
	var u model.User
	err := r.db.GetContext(ctx, &u, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// FindActiveUsers returns everyone eligible for bulk notifications
// (daily summary, market open/close).
func (r *userRepository) FindActiveUsers(ctx context.Context) ([]model.User, error) {
	query := `SELECT id, email, nickname, is_active, created_at FROM users WHERE is_active = true`
	var users []model.User
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("find active users: %w", err)
	}
	return users, nil
}
