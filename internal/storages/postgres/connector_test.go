package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"gw-lending/internal/storages"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	cfg := &Config{Host: "db", Port: 5432, User: "lending_user", Password: "pw", DBName: "lending_db", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=lending_user password=pw dbname=lending_db sslmode=disable", cfg.DSN())
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError(sql.ErrNoRows), storages.ErrNotFound)
	assert.ErrorIs(t, mapError(fmt.Errorf("scan: %w", sql.ErrNoRows)), storages.ErrNotFound)
	assert.ErrorIs(t, mapError(&pq.Error{Code: "23505"}), storages.ErrAlreadyExists)

	other := errors.New("connection reset")
	assert.Equal(t, other, mapError(other))
	assert.NotErrorIs(t, mapError(&pq.Error{Code: "23503"}), storages.ErrAlreadyExists)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&pq.Error{Code: "40001"}))
	assert.True(t, retryable(fmt.Errorf("failed to commit transaction: %w", &pq.Error{Code: "40001"})))
	assert.True(t, retryable(fmt.Errorf("failed to record borrow: %w", &pq.Error{Code: "23505"})))

	assert.False(t, retryable(&pq.Error{Code: "23514"}))
	assert.False(t, retryable(sql.ErrNoRows))
	assert.False(t, retryable(errors.New("connection refused")))
}
