package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPPort, cfg.Server.HTTPPort)
	assert.Equal(t, StorageDriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, LedgerModeEVM, cfg.Ledger.Mode)
	assert.Equal(t, uint64(DefaultLedgerChainID), cfg.Ledger.ChainID)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.LargeAmountThreshold.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, "localhost:50051", cfg.Rates.Address())

	// секрет по умолчанию не проходит проверку
	assert.Error(t, cfg.ValidateLending())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.env")
	content := "JWT_SECRET=test-secret\n" +
		"LEDGER_MODE=memory\n" +
		"STORAGE_DRIVER=memory\n" +
		"KAFKA_BROKERS=k1:9092, k2:9092\n" +
		"KAFKA_LARGE_AMOUNT_THRESHOLD=2500.50\n" +
		"CACHE_BALANCE_TTL=3s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	keys := []string{"JWT_SECRET", "LEDGER_MODE", "STORAGE_DRIVER", "KAFKA_BROKERS", "KAFKA_LARGE_AMOUNT_THRESHOLD", "CACHE_BALANCE_TTL"}
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	t.Cleanup(func() {
		for _, k := range keys {
			_ = os.Unsetenv(k)
		}
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.LargeAmountThreshold.Equal(decimal.RequireFromString("2500.50")))
	assert.Equal(t, 3*time.Second, cfg.Cache.BalanceTTL)
	assert.NoError(t, cfg.ValidateLending())
}

func TestValidateLending(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.JWT.Secret = "s3cret"

	cfg.Ledger.Mode = LedgerModeEVM
	cfg.Ledger.ContractAddress = "not-an-address"
	assert.Error(t, cfg.ValidateLending())

	cfg.Ledger.ContractAddress = "0x00000000000000000000000000000000000000aa"
	assert.NoError(t, cfg.ValidateLending())

	cfg.Ledger.Mode = "solana"
	assert.Error(t, cfg.ValidateLending())

	cfg.Ledger.Mode = LedgerModeMemory
	cfg.Storage.Driver = "sqlite"
	assert.Error(t, cfg.ValidateLending())
}

func TestValidateJournalAndRates(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateJournal())
	assert.NoError(t, cfg.ValidateRates())

	cfg.Processing.Workers = 0
	assert.Error(t, cfg.ValidateJournal())

	cfg.Logger.Level = "loud"
	assert.Error(t, cfg.ValidateRates())
}

func TestValidateReviewerBootstrap(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.JWT.Secret = "s3cret"
	cfg.Ledger.Mode = LedgerModeMemory
	assert.False(t, cfg.Reviewer.Bootstrap())
	assert.Equal(t, DefaultLedgerLockWait, cfg.Ledger.LockWait)

	cfg.Reviewer.Username = "admin"
	assert.Error(t, cfg.ValidateLending())

	cfg.Reviewer.Password = "admin-password"
	assert.NoError(t, cfg.ValidateLending())
	assert.True(t, cfg.Reviewer.Bootstrap())

	cfg.Ledger.LockWait = 0
	assert.Error(t, cfg.ValidateLending())
}
