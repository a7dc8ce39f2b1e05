package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gw-lending/internal/rates"
)

// ListCurrencies возвращает все валюты с курсами
func (s *PostgresStorage) ListCurrencies(ctx context.Context) ([]rates.Currency, error) {
	query := `
		SELECT id, code, name, rate, symbol
		FROM currencies
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.logger.Errorf("Failed to query currencies: %v", err)
		return nil, fmt.Errorf("failed to query currencies: %w", err)
	}
	defer rows.Close()

	var currencies []rates.Currency
	for rows.Next() {
		var c rates.Currency
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Rate, &c.Symbol); err != nil {
			s.logger.Errorf("Failed to scan currency: %v", err)
			return nil, fmt.Errorf("failed to scan currency: %w", err)
		}
		currencies = append(currencies, c)
	}

	if err = rows.Err(); err != nil {
		s.logger.Errorf("Error iterating currencies: %v", err)
		return nil, fmt.Errorf("error iterating currencies: %w", err)
	}

	s.logger.Debugf("Retrieved %d currencies", len(currencies))
	return currencies, nil
}

// GetCurrency возвращает валюту по коду
func (s *PostgresStorage) GetCurrency(ctx context.Context, code string) (*rates.Currency, error) {
	query := `
		SELECT id, code, name, rate, symbol
		FROM currencies
		WHERE code = $1
	`

	var c rates.Currency
	err := s.db.QueryRowContext(ctx, query, strings.ToUpper(code)).Scan(&c.ID, &c.Code, &c.Name, &c.Rate, &c.Symbol)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warnf("Currency not found: %s", code)
		return nil, fmt.Errorf("%s: %w", code, rates.ErrNotFound)
	}
	if err != nil {
		s.logger.Errorf("Failed to get currency: %v", err)
		return nil, fmt.Errorf("failed to get currency: %w", err)
	}

	return &c, nil
}
