package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gw-lending/internal/storages"
)

const receiptColumns = `id, position_id, owner, amount, image_ref, status, reviewer, reject_reason, created_at, updated_at`

func scanReceipt(row rowScanner) (*storages.Receipt, error) {
	var r storages.Receipt
	err := row.Scan(
		&r.ID,
		&r.PositionID,
		&r.Owner,
		&r.Amount,
		&r.ImageRef,
		&r.Status,
		&r.Reviewer,
		&r.RejectReason,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateReceipt сохраняет квитанцию
func (s *PostgresStorage) CreateReceipt(ctx context.Context, receipt *storages.Receipt) error {
	query := `
		INSERT INTO payment_receipts (id, position_id, owner, amount, image_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`

	now := time.Now()
	_, err := s.db.ExecContext(ctx, query,
		receipt.ID,
		receipt.PositionID,
		receipt.Owner,
		receipt.Amount,
		receipt.ImageRef,
		receipt.Status,
		now,
	)
	if err != nil {
		s.logger.Errorf("Failed to create receipt: %v", err)
		return fmt.Errorf("failed to create receipt: %w", mapError(err))
	}

	receipt.CreatedAt = now
	receipt.UpdatedAt = now

	s.logger.Infof("Created receipt: ID=%s, Position=%d", receipt.ID, receipt.PositionID)
	return nil
}

// GetReceipt возвращает квитанцию по ID
func (s *PostgresStorage) GetReceipt(ctx context.Context, id string) (*storages.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM payment_receipts WHERE id = $1`

	r, err := scanReceipt(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("receipt %s: %w", id, storages.ErrNotFound)
		}
		s.logger.Errorf("Failed to get receipt: %v", err)
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return r, nil
}

// ListReceipts возвращает квитанции в статусе (или все при пустом статусе)
func (s *PostgresStorage) ListReceipts(ctx context.Context, status string, limit int) ([]storages.Receipt, error) {
	query := `
		SELECT ` + receiptColumns + `
		FROM payment_receipts
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at
		LIMIT $2
	`
	return s.queryReceipts(ctx, query, status, limit)
}

// ListReceiptsByOwner квитанции владельца, новые первыми. positionID 0
// значит по всем позициям.
func (s *PostgresStorage) ListReceiptsByOwner(ctx context.Context, owner string, positionID int64) ([]storages.Receipt, error) {
	query := `
		SELECT ` + receiptColumns + `
		FROM payment_receipts
		WHERE owner = $1 AND ($2 = 0 OR position_id = $2)
		ORDER BY created_at DESC
	`
	return s.queryReceipts(ctx, query, owner, positionID)
}

func (s *PostgresStorage) queryReceipts(ctx context.Context, query string, args ...interface{}) ([]storages.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Errorf("Failed to query receipts: %v", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []storages.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			s.logger.Errorf("Failed to scan receipt: %v", err)
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, *r)
	}

	if err = rows.Err(); err != nil {
		s.logger.Errorf("Error iterating receipts: %v", err)
		return nil, fmt.Errorf("error iterating receipts: %w", err)
	}

	return receipts, nil
}

// UpdateReceiptStatus меняет статус квитанции, если текущий равен from
func (s *PostgresStorage) UpdateReceiptStatus(ctx context.Context, id, from, to, reviewer, reason string) (*storages.Receipt, error) {
	query := `
		UPDATE payment_receipts
		SET status = $1,
			reviewer = CASE WHEN $2 = '' THEN reviewer ELSE $2 END,
			reject_reason = $3,
			updated_at = $4
		WHERE id = $5 AND status = $6
		RETURNING ` + receiptColumns

	r, err := scanReceipt(s.db.QueryRowContext(ctx, query, to, reviewer, reason, time.Now(), id, from))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("receipt %s not in %s: %w", id, from, storages.ErrConflict)
		}
		s.logger.Errorf("Failed to update receipt status: %v", err)
		return nil, fmt.Errorf("failed to update receipt status: %w", err)
	}

	s.logger.Debugf("Updated receipt %s status %s -> %s", id, from, to)
	return r, nil
}
