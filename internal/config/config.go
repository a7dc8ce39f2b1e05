package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config конфигурация всех трех сервисов. Каждый бинарник проверяет
// только свою часть.
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Reviewer   ReviewerConfig
	Rates      RatesConfig
	Cache      CacheConfig
	Kafka      KafkaConfig
	MongoDB    MongoDBConfig
	Processing ProcessingConfig
	Ledger     LedgerConfig
	Logger     LoggerConfig
}

// ServerConfig содержит конфигурацию сервера
type ServerConfig struct {
	HTTPPort string
	GinMode  string
}

// StorageConfig выбор хранилища позиций
type StorageConfig struct {
	Driver string // postgres, memory
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
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

// JWTConfig содержит конфигурацию JWT
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// ReviewerConfig первый проверяющий. Регистрировать новых может только
// уже вошедший проверяющий, поэтому первого создает сам сервис.
type ReviewerConfig struct {
	Username string
	Email    string
	Password string
}

// Bootstrap задан ли первый проверяющий
func (r ReviewerConfig) Bootstrap() bool {
	return r.Username != "" && r.Password != ""
}

// RatesConfig клиент и сервер gw-rates
type RatesConfig struct {
	Enabled   bool // брать таблицу у gw-rates вместо встроенной
	Host      string
	Port      string
	Timeout   time.Duration
	GRPCPort  string
	DefaultID int
}

// Address адрес gw-rates для клиента
func (r RatesConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// CacheConfig содержит конфигурацию кеша
type CacheConfig struct {
	BalanceTTL         time.Duration
	OperationRetention time.Duration
}

// KafkaConfig содержит конфигурацию Kafka
type KafkaConfig struct {
	Enabled              bool
	Brokers              []string
	Topic                string
	GroupID              string
	MinBytes             int
	MaxBytes             int
	MaxWait              time.Duration
	LargeAmountThreshold decimal.Decimal
}

// MongoDBConfig содержит конфигурацию MongoDB
type MongoDBConfig struct {
	URI         string
	Database    string
	Collection  string
	Timeout     time.Duration
	MaxPoolSize uint64
	MinPoolSize uint64
}

// ProcessingConfig обработка сообщений в gw-journal
type ProcessingConfig struct {
	BatchSize     int
	Workers       int
	FlushInterval time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	StatsInterval time.Duration
}

// LedgerConfig подключение к сети и контракту
type LedgerConfig struct {
	Mode            string // evm, memory
	RPCURL          string
	ChainID         uint64
	ContractAddress string
	KeystoreDir     string
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
	UnlockTTL       time.Duration
	LockWait        time.Duration // ожидание занятой позиции или владельца
	// MemoryFaucet сколько залога начислять новому кошельку в режиме memory
	MemoryFaucet    decimal.Decimal
}

// Contract адрес контракта кредитования
func (l LedgerConfig) Contract() common.Address {
	return common.HexToAddress(l.ContractAddress)
}

// LoggerConfig содержит конфигурацию логгера
type LoggerConfig struct {
	Level string
}

// Load загружает конфигурацию из файла окружения
func Load(configPath string) (*Config, error) {
	if configPath != "" {
		if err := godotenv.Load(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg := &Config{}

	// Server
	cfg.Server.HTTPPort = getEnv("HTTP_PORT", DefaultHTTPPort)
	cfg.Server.GinMode = getEnv("GIN_MODE", DefaultGinMode)

	// Storage
	cfg.Storage.Driver = strings.ToLower(getEnv("STORAGE_DRIVER", DefaultStorageDriver))

	// Database
	cfg.Database.Host = getEnv("DB_HOST", DefaultDBHost)
	cfg.Database.Port = getEnvInt("DB_PORT", DefaultDBPort)
	cfg.Database.User = getEnv("DB_USER", DefaultDBUser)
	cfg.Database.Password = getEnv("DB_PASSWORD", DefaultDBPassword)
	cfg.Database.DBName = getEnv("DB_NAME", DefaultDBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", DefaultDBSSLMode)
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", DefaultDBMaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", DefaultDBMaxIdleConns)
	cfg.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", DefaultDBConnMaxLifetime)

	// JWT
	cfg.JWT.Secret = getEnv("JWT_SECRET", DefaultJWTSecret)
	cfg.JWT.Expiration = getEnvDuration("JWT_EXPIRATION", DefaultJWTExpiration)

	// Reviewer bootstrap
	cfg.Reviewer.Username = getEnv("REVIEWER_ADMIN_USERNAME", "")
	cfg.Reviewer.Email = getEnv("REVIEWER_ADMIN_EMAIL", "")
	cfg.Reviewer.Password = getEnv("REVIEWER_ADMIN_PASSWORD", "")

	// Rates gRPC
	cfg.Rates.Enabled = getEnvBool("RATES_GRPC_ENABLED", DefaultRatesEnabled)
	cfg.Rates.Host = getEnv("RATES_GRPC_HOST", DefaultRatesHost)
	cfg.Rates.Port = getEnv("RATES_GRPC_PORT", DefaultRatesPort)
	cfg.Rates.Timeout = getEnvDuration("RATES_GRPC_TIMEOUT", DefaultRatesTimeout)
	cfg.Rates.GRPCPort = getEnv("GRPC_PORT", DefaultRatesGRPCPort)
	cfg.Rates.DefaultID = getEnvInt("RATES_DEFAULT_CURRENCY_ID", DefaultRatesDefaultID)

	// Cache
	cfg.Cache.BalanceTTL = getEnvDuration("CACHE_BALANCE_TTL", DefaultCacheBalanceTTL)
	cfg.Cache.OperationRetention = getEnvDuration("OPERATION_RETENTION", DefaultOperationRetention)

	// Kafka
	cfg.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", DefaultKafkaEnabled)
	cfg.Kafka.Brokers = splitList(getEnv("KAFKA_BROKERS", DefaultKafkaBrokers))
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", DefaultKafkaTopic)
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", DefaultKafkaGroupID)
	cfg.Kafka.MinBytes = getEnvInt("KAFKA_MIN_BYTES", DefaultKafkaMinBytes)
	cfg.Kafka.MaxBytes = getEnvInt("KAFKA_MAX_BYTES", DefaultKafkaMaxBytes)
	cfg.Kafka.MaxWait = getEnvDuration("KAFKA_MAX_WAIT", DefaultKafkaMaxWait)
	cfg.Kafka.LargeAmountThreshold = getEnvDecimal("KAFKA_LARGE_AMOUNT_THRESHOLD", DefaultKafkaLargeAmountThreshold)

	// MongoDB
	cfg.MongoDB.URI = getEnv("MONGO_URI", DefaultMongoURI)
	cfg.MongoDB.Database = getEnv("MONGO_DATABASE", DefaultMongoDatabase)
	cfg.MongoDB.Collection = getEnv("MONGO_COLLECTION", DefaultMongoCollection)
	cfg.MongoDB.Timeout = getEnvDuration("MONGO_TIMEOUT", DefaultMongoTimeout)
	cfg.MongoDB.MaxPoolSize = uint64(getEnvInt("MONGO_MAX_POOL_SIZE", DefaultMongoMaxPoolSize))
	cfg.MongoDB.MinPoolSize = uint64(getEnvInt("MONGO_MIN_POOL_SIZE", DefaultMongoMinPoolSize))

	// Processing
	cfg.Processing.BatchSize = getEnvInt("PROCESSING_BATCH_SIZE", DefaultBatchSize)
	cfg.Processing.Workers = getEnvInt("PROCESSING_WORKERS", DefaultWorkers)
	cfg.Processing.FlushInterval = getEnvDuration("PROCESSING_FLUSH_INTERVAL", DefaultFlushInterval)
	cfg.Processing.RetryAttempts = getEnvInt("PROCESSING_RETRY_ATTEMPTS", DefaultRetryAttempts)
	cfg.Processing.RetryDelay = getEnvDuration("PROCESSING_RETRY_DELAY", DefaultRetryDelay)
	cfg.Processing.StatsInterval = getEnvDuration("PROCESSING_STATS_INTERVAL", DefaultStatsInterval)

	// Ledger
	cfg.Ledger.Mode = strings.ToLower(getEnv("LEDGER_MODE", DefaultLedgerMode))
	cfg.Ledger.RPCURL = getEnv("LEDGER_RPC_URL", DefaultLedgerRPCURL)
	cfg.Ledger.ChainID = uint64(getEnvInt("LEDGER_CHAIN_ID", DefaultLedgerChainID))
	cfg.Ledger.ContractAddress = getEnv("LEDGER_CONTRACT_ADDRESS", "")
	cfg.Ledger.KeystoreDir = getEnv("LEDGER_KEYSTORE_DIR", DefaultLedgerKeystoreDir)
	cfg.Ledger.ConfirmTimeout = getEnvDuration("LEDGER_CONFIRM_TIMEOUT", DefaultLedgerConfirmTimeout)
	cfg.Ledger.PollInterval = getEnvDuration("LEDGER_POLL_INTERVAL", DefaultLedgerPollInterval)
	cfg.Ledger.UnlockTTL = getEnvDuration("WALLET_UNLOCK_TTL", DefaultWalletUnlockTTL)
	cfg.Ledger.LockWait = getEnvDuration("LEDGER_LOCK_WAIT", DefaultLedgerLockWait)
	cfg.Ledger.MemoryFaucet = getEnvDecimal("LEDGER_MEMORY_FAUCET", DefaultLedgerMemoryFaucet)

	// Logger
	cfg.Logger.Level = getEnv("LOG_LEVEL", DefaultLogLevel)

	return cfg, nil
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленную переменную окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDecimal суммы читаются как decimal, без float
func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(defaultValue)
}

// getEnvDuration получает переменную окружения типа duration
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) validateLogger() error {
	if _, err := logrus.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Logger.Level)
	}
	return nil
}

func (c *Config) validateKafka() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required")
	}
	return nil
}

// ValidateLending проверяет конфигурацию gw-lending
func (c *Config) ValidateLending() error {
	if c.Server.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT is required")
	}

	switch c.Storage.Driver {
	case StorageDriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER: %s", c.Storage.Driver)
	}

	if c.JWT.Secret == "" || c.JWT.Secret == DefaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set to a secure value")
	}

	switch c.Ledger.Mode {
	case LedgerModeEVM:
		if c.Ledger.RPCURL == "" {
			return fmt.Errorf("LEDGER_RPC_URL is required")
		}
		if !common.IsHexAddress(c.Ledger.ContractAddress) {
			return fmt.Errorf("LEDGER_CONTRACT_ADDRESS must be a hex address")
		}
		if c.Ledger.KeystoreDir == "" {
			return fmt.Errorf("LEDGER_KEYSTORE_DIR is required")
		}
	case LedgerModeMemory:
		if c.Ledger.ContractAddress != "" && !common.IsHexAddress(c.Ledger.ContractAddress) {
			return fmt.Errorf("LEDGER_CONTRACT_ADDRESS must be a hex address")
		}
	default:
		return fmt.Errorf("unknown LEDGER_MODE: %s", c.Ledger.Mode)
	}

	if c.Cache.BalanceTTL <= 0 {
		return fmt.Errorf("CACHE_BALANCE_TTL must be positive")
	}
	if c.Ledger.LockWait <= 0 {
		return fmt.Errorf("LEDGER_LOCK_WAIT must be positive")
	}
	if (c.Reviewer.Username == "") != (c.Reviewer.Password == "") {
		return fmt.Errorf("REVIEWER_ADMIN_USERNAME and REVIEWER_ADMIN_PASSWORD must be set together")
	}

	if c.Kafka.Enabled {
		if err := c.validateKafka(); err != nil {
			return err
		}
		if c.Kafka.LargeAmountThreshold.IsNegative() {
			return fmt.Errorf("KAFKA_LARGE_AMOUNT_THRESHOLD must not be negative")
		}
	}

	return c.validateLogger()
}

// ValidateRates проверяет конфигурацию gw-rates
func (c *Config) ValidateRates() error {
	if c.Rates.GRPCPort == "" {
		return fmt.Errorf("GRPC_PORT is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	return c.validateLogger()
}

// ValidateJournal проверяет конфигурацию gw-journal
func (c *Config) ValidateJournal() error {
	if c.MongoDB.URI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		return fmt.Errorf("MONGO_DATABASE is required")
	}
	if err := c.validateKafka(); err != nil {
		return err
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("KAFKA_GROUP_ID is required")
	}
	if c.Processing.BatchSize <= 0 {
		return fmt.Errorf("PROCESSING_BATCH_SIZE must be positive")
	}
	if c.Processing.Workers <= 0 {
		return fmt.Errorf("PROCESSING_WORKERS must be positive")
	}
	if c.Processing.StatsInterval <= 0 {
		return fmt.Errorf("PROCESSING_STATS_INTERVAL must be positive")
	}
	return c.validateLogger()
}
