package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gw-lending/internal/rates"
	"gw-lending/internal/storages"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Config содержит конфигурацию для подключения к PostgreSQL
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN строка подключения для lib/pq
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// PostgresStorage реализует storages.Storage и storages.CurrencyStorage
type PostgresStorage struct {
	db     *sql.DB
	logger *logrus.Logger
}

// New создает новое подключение к PostgreSQL
func New(cfg *Config, logger *logrus.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Successfully connected to PostgreSQL")

	storage := &PostgresStorage{
		db:     db,
		logger: logger,
	}

	if err := storage.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema создает необходимые таблицы, если они не существуют
func (s *PostgresStorage) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS reviewers (
		id SERIAL PRIMARY KEY,
		username VARCHAR(50) UNIQUE NOT NULL,
		email VARCHAR(100) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS borrow_positions (
		id BIGSERIAL PRIMARY KEY,
		owner VARCHAR(42) NOT NULL,
		collateral_asset VARCHAR(42) NOT NULL,
		currency_code VARCHAR(32) NOT NULL,
		borrowed_amount NUMERIC(38, 18) NOT NULL,
		total_repaid NUMERIC(38, 18) NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CHECK (borrowed_amount > 0),
		CHECK (total_repaid >= 0 AND total_repaid <= borrowed_amount)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_one_active
		ON borrow_positions(owner, collateral_asset, currency_code) WHERE status = 'active';
	CREATE INDEX IF NOT EXISTS idx_positions_owner ON borrow_positions(owner);

	CREATE TABLE IF NOT EXISTS payment_receipts (
		id UUID PRIMARY KEY,
		position_id BIGINT NOT NULL REFERENCES borrow_positions(id) ON DELETE CASCADE,
		owner VARCHAR(42) NOT NULL,
		amount NUMERIC(38, 18) NOT NULL,
		image_ref TEXT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'submitted',
		reviewer VARCHAR(50) NOT NULL DEFAULT '',
		reject_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CHECK (amount > 0)
	);

	CREATE INDEX IF NOT EXISTS idx_receipts_status ON payment_receipts(status);
	CREATE INDEX IF NOT EXISTS idx_receipts_position ON payment_receipts(position_id);
	CREATE INDEX IF NOT EXISTS idx_receipts_owner ON payment_receipts(owner, created_at DESC);

	CREATE TABLE IF NOT EXISTS currencies (
		id INTEGER PRIMARY KEY,
		code VARCHAR(32) UNIQUE NOT NULL,
		name VARCHAR(100) NOT NULL,
		rate NUMERIC(38, 18) NOT NULL,
		symbol VARCHAR(8) NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CHECK (rate > 0)
	);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Info("Database schema initialized")

	return s.seedCurrencies(ctx)
}

// seedCurrencies заполняет таблицу валют значениями по умолчанию
func (s *PostgresStorage) seedCurrencies(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM currencies").Scan(&count); err != nil {
		return err
	}

	if count > 0 {
		s.logger.Info("Currencies already seeded, skipping")
		return nil
	}

	for _, c := range rates.DefaultCurrencies() {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO currencies (id, code, name, rate, symbol) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (code) DO NOTHING",
			c.ID, c.Code, c.Name, c.Rate, c.Symbol,
		)
		if err != nil {
			return fmt.Errorf("failed to insert currency %s: %w", c.Code, err)
		}
	}

	s.logger.Info("Initial currencies seeded successfully")
	return nil
}

// mapError переводит ошибки драйвера в ошибки пакета storages
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storages.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return storages.ErrAlreadyExists
	}
	return err
}

// Close закрывает соединение с базой данных
func (s *PostgresStorage) Close() error {
	if s.db != nil {
		s.logger.Info("Closing database connection")
		return s.db.Close()
	}
	return nil
}

// Ping проверяет соединение с базой данных
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
