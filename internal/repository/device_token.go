package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stockpulse/internal/model"
)

type deviceTokenRepository struct {
	db *sqlx.DB
}

func NewDeviceTokenRepository(db *sqlx.DB) DeviceTokenRepository {
	return &deviceTokenRepository{db: db}
}

// FindActiveTokens returns the active token strings for a user.
func (r *deviceTokenRepository) FindActiveTokens(ctx context.Context, userID int64) ([]string, error) {
	query := `
		SELECT token
		FROM user_device_tokens
		WHERE user_id = $1 AND is_active = true
		ORDER BY updated_at DESC
	`
	var tokens []string
	if err := r.db.SelectContext(ctx, &tokens, query, userID); err != nil {
		return nil, fmt.Errorf("find active tokens: %w", err)
	}
	return tokens, nil
}

// FindAllByToken returns every row holding the token string.
// The unique constraint should keep this to at most one row, but the service
// layer dedupes defensively in case the constraint is missing or broken.
func (r *deviceTokenRepository) FindAllByToken(ctx context.Context, token string) ([]model.DeviceToken, error) {
	query := `
		SELECT id, user_id, token, platform, is_active, created_at, updated_at
		FROM user_device_tokens
		WHERE token = $1
		ORDER BY updated_at DESC
	`
	var rows []model.DeviceToken
	if err := r.db.SelectContext(ctx, &rows, query, token); err != nil {
		return nil, fmt.Errorf("find tokens by value: %w", err)
	}
	return rows, nil
}

// Insert creates a fresh registration.
func (r *deviceTokenRepository) Insert(ctx context.Context, t *model.DeviceToken) error {
	query := `
		INSERT INTO user_device_tokens (user_id, token, platform, is_active)
		VALUES ($1, $2, $3, true)
		RETURNING id, is_active, created_at, updated_at
	`
	row := r.db.QueryRowxContext(ctx, query, t.UserID, t.Token, t.Platform)
	if err := row.Scan(&t.ID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return fmt.Errorf("insert device token: %w", err)
	}
	return nil
}

// Reassign moves a registration to a new owner/platform and reactivates it.
// Covers the device-changed-hands case: same token, different account.
func (r *deviceTokenRepository) Reassign(ctx context.Context, id, userID int64, platform string) error {
	query := `
		UPDATE user_device_tokens
		SET user_id = $2, platform = $3, is_active = true, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, userID, platform); err != nil {
		return fmt.Errorf("reassign device token: %w", err)
	}
	return nil
}

func (r *deviceTokenRepository) DeactivateByID(ctx context.Context, id int64) error {
	query := `UPDATE user_device_tokens SET is_active = false, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("deactivate device token by id: %w", err)
	}
	return nil
}

// Deactivate marks the token inactive regardless of owner. Used when the
// push gateway reports the token permanently dead.
func (r *deviceTokenRepository) Deactivate(ctx context.Context, token string) error {
	query := `UPDATE user_device_tokens SET is_active = false, updated_at = NOW() WHERE token = $1`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("deactivate device token: %w", err)
	}
	return nil
}

// DeactivateForUser marks the token inactive only if the user owns it.
// Idempotent: missing or already-inactive rows are not an error.
func (r *deviceTokenRepository) DeactivateForUser(ctx context.Context, token string, userID int64) error {
	query := `
		UPDATE user_device_tokens
		SET is_active = false, updated_at = NOW()
		WHERE token = $1 AND user_id = $2
	`
	if _, err := r.db.ExecContext(ctx, query, token, userID); err != nil {
		return fmt.Errorf("deactivate device token for user: %w", err)
	}
	return nil
}
