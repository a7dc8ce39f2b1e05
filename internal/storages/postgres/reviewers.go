package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gw-lending/internal/storages"
)

// CreateReviewer создает нового оператора
func (s *PostgresStorage) CreateReviewer(ctx context.Context, reviewer *storages.Reviewer) error {
	query := `
		INSERT INTO reviewers (username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		reviewer.Username,
		reviewer.Email,
		reviewer.PasswordHash,
		now,
		now,
	).Scan(&reviewer.ID)

	if err != nil {
		s.logger.Errorf("Failed to create reviewer: %v", err)
		return fmt.Errorf("failed to create reviewer: %w", mapError(err))
	}

	reviewer.CreatedAt = now
	reviewer.UpdatedAt = now

	s.logger.Infof("Created reviewer: %s (ID: %d)", reviewer.Username, reviewer.ID)
	return nil
}

// GetReviewerByUsername возвращает оператора по имени
func (s *PostgresStorage) GetReviewerByUsername(ctx context.Context, username string) (*storages.Reviewer, error) {
	return s.getReviewer(ctx, "username", username)
}

// GetReviewerByEmail возвращает оператора по email
func (s *PostgresStorage) GetReviewerByEmail(ctx context.Context, email string) (*storages.Reviewer, error) {
	return s.getReviewer(ctx, "email", email)
}

func (s *PostgresStorage) getReviewer(ctx context.Context, column, value string) (*storages.Reviewer, error) {
	query := fmt.Sprintf(`
		SELECT id, username, email, password_hash, created_at, updated_at
		FROM reviewers
		WHERE %s = $1
	`, column)

	var r storages.Reviewer
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&r.ID,
		&r.Username,
		&r.Email,
		&r.PasswordHash,
		&r.CreatedAt,
		&r.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reviewer %s: %w", value, storages.ErrNotFound)
	}

	if err != nil {
		s.logger.Errorf("Failed to get reviewer by %s: %v", column, err)
		return nil, fmt.Errorf("failed to get reviewer: %w", err)
	}

	return &r, nil
}
