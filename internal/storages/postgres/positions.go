package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gw-lending/internal/storages"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const positionColumns = `id, owner, collateral_asset, currency_code, borrowed_amount, total_repaid, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*storages.BorrowPosition, error) {
	var p storages.BorrowPosition
	err := row.Scan(
		&p.ID,
		&p.Owner,
		&p.CollateralAsset,
		&p.CurrencyCode,
		&p.BorrowedAmount,
		&p.TotalRepaid,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPosition возвращает позицию по ID
func (s *PostgresStorage) GetPosition(ctx context.Context, id int64) (*storages.BorrowPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM borrow_positions WHERE id = $1`

	p, err := scanPosition(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("position %d: %w", id, storages.ErrNotFound)
		}
		s.logger.Errorf("Failed to get position: %v", err)
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return p, nil
}

// GetActivePosition возвращает активную позицию по владельцу, активу и валюте
func (s *PostgresStorage) GetActivePosition(ctx context.Context, owner, asset, currency string) (*storages.BorrowPosition, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM borrow_positions
		WHERE owner = $1 AND collateral_asset = $2 AND currency_code = $3 AND status = $4
	`

	p, err := scanPosition(s.db.QueryRowContext(ctx, query, owner, asset, currency, storages.PositionStatusActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active position for %s/%s: %w", owner, currency, storages.ErrNotFound)
		}
		s.logger.Errorf("Failed to get active position: %v", err)
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return p, nil
}

// ListPositions возвращает все позиции владельца
func (s *PostgresStorage) ListPositions(ctx context.Context, owner string) ([]storages.BorrowPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM borrow_positions WHERE owner = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, owner)
	if err != nil {
		s.logger.Errorf("Failed to query positions: %v", err)
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []storages.BorrowPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			s.logger.Errorf("Failed to scan position: %v", err)
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, *p)
	}

	if err = rows.Err(); err != nil {
		s.logger.Errorf("Error iterating positions: %v", err)
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// addBorrowAttempts попыток записи заема при конфликте транзакций
const addBorrowAttempts = 4

// AddBorrow увеличивает активную позицию или создает новую атомарно.
// Конфликт сериализации и гонка за уникальную активную позицию
// повторяются: к этому моменту заем уже подтвержден в сети.
func (s *PostgresStorage) AddBorrow(ctx context.Context, owner, asset, currency string, amount decimal.Decimal) (*storages.BorrowPosition, error) {
	var lastErr error
	for attempt := 1; attempt <= addBorrowAttempts; attempt++ {
		p, err := s.addBorrowOnce(ctx, owner, asset, currency, amount)
		if err == nil {
			return p, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
		s.logger.Warnf("Borrow record for %s/%s conflicted (attempt %d/%d): %v",
			owner, currency, attempt, addBorrowAttempts, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("failed to record borrow after %d attempts: %w", addBorrowAttempts, lastErr)
}

// retryable конфликт сериализации (40001) или уникального индекса (23505)
func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "23505"
}

func (s *PostgresStorage) addBorrowOnce(ctx context.Context, owner, asset, currency string, amount decimal.Decimal) (*storages.BorrowPosition, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		s.logger.Errorf("Failed to begin transaction: %v", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	// 1. Ищем активную позицию с блокировкой строки
	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM borrow_positions
		WHERE owner = $1 AND collateral_asset = $2 AND currency_code = $3 AND status = $4
		FOR UPDATE
	`, owner, asset, currency, storages.PositionStatusActive).Scan(&id)

	var p *storages.BorrowPosition
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// 2a. Создаем новую позицию
		p, err = scanPosition(tx.QueryRowContext(ctx, `
			INSERT INTO borrow_positions (owner, collateral_asset, currency_code, borrowed_amount, total_repaid, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 0, $5, $6, $6)
			RETURNING `+positionColumns,
			owner, asset, currency, amount, storages.PositionStatusActive, now))
	case err == nil:
		// 2b. Увеличиваем существующую
		p, err = scanPosition(tx.QueryRowContext(ctx, `
			UPDATE borrow_positions
			SET borrowed_amount = borrowed_amount + $1, updated_at = $2
			WHERE id = $3
			RETURNING `+positionColumns,
			amount, now, id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record borrow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Infof("Borrow recorded: position=%d owner=%s borrowed=%s %s",
		p.ID, owner, p.BorrowedAmount.String(), currency)
	return p, nil
}

// ApplyRepayment увеличивает total_repaid условным UPDATE
func (s *PostgresStorage) ApplyRepayment(ctx context.Context, positionID int64, amount decimal.Decimal) (*storages.BorrowPosition, error) {
	query := `
		UPDATE borrow_positions
		SET total_repaid = total_repaid + $1,
			status = CASE WHEN total_repaid + $1 = borrowed_amount THEN $2 ELSE status END,
			updated_at = $3
		WHERE id = $4 AND status = $5 AND total_repaid + $1 <= borrowed_amount
		RETURNING ` + positionColumns

	p, err := scanPosition(s.db.QueryRowContext(ctx, query,
		amount,
		storages.PositionStatusRepaid,
		time.Now(),
		positionID,
		storages.PositionStatusActive,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("position %d: %w", positionID, storages.ErrConflict)
		}
		s.logger.Errorf("Failed to apply repayment: %v", err)
		return nil, fmt.Errorf("failed to apply repayment: %w", err)
	}

	s.logger.Infof("Repayment applied: position=%d repaid=%s/%s status=%s",
		p.ID, p.TotalRepaid.String(), p.BorrowedAmount.String(), p.Status)
	return p, nil
}
