package config

import "time"

// Server defaults
const (
	DefaultHTTPPort = "8080"
	DefaultGinMode  = "release"
	DefaultLogLevel = "info"
)

// Storage defaults
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	DefaultStorageDriver = StorageDriverPostgres
)

// Database defaults
const (
	DefaultDBHost            = "localhost"
	DefaultDBPort            = 5432
	DefaultDBUser            = "lending_user"
	DefaultDBPassword        = "lending_password"
	DefaultDBName            = "lending_db"
	DefaultDBSSLMode         = "disable"
	DefaultDBMaxOpenConns    = 25
	DefaultDBMaxIdleConns    = 5
	DefaultDBConnMaxLifetime = 5 * time.Minute
)

// JWT defaults
const (
	DefaultJWTSecret     = "change-me-in-production"
	DefaultJWTExpiration = 24 * time.Hour
)

// Rates gRPC defaults
const (
	DefaultRatesHost      = "localhost"
	DefaultRatesPort      = "50051"
	DefaultRatesTimeout   = 5 * time.Second
	DefaultRatesEnabled   = false
	DefaultRatesGRPCPort  = "50051"
	DefaultRatesDefaultID = 1
)

// Cache defaults
const (
	DefaultCacheBalanceTTL    = 15 * time.Second
	DefaultOperationRetention = time.Hour
)

// Kafka defaults
const (
	DefaultKafkaBrokers              = "localhost:9092"
	DefaultKafkaTopic                = "lending-operations"
	DefaultKafkaGroupID              = "lending-journal-group"
	DefaultKafkaMinBytes             = 1
	DefaultKafkaMaxBytes             = 10485760 // 10MB
	DefaultKafkaMaxWait              = 500 * time.Millisecond
	DefaultKafkaLargeAmountThreshold = "10000"
	DefaultKafkaEnabled              = true
)

// MongoDB defaults
const (
	DefaultMongoURI         = "mongodb://localhost:27017"
	DefaultMongoDatabase    = "lending_journal"
	DefaultMongoCollection  = "operation_events"
	DefaultMongoTimeout     = 10 * time.Second
	DefaultMongoMaxPoolSize = 100
	DefaultMongoMinPoolSize = 10
)

// Processing defaults
const (
	DefaultBatchSize     = 100
	DefaultWorkers       = 4
	DefaultFlushInterval = 5 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 1 * time.Second
	DefaultStatsInterval = 30 * time.Second
)

// Ledger defaults
const (
	LedgerModeEVM    = "evm"
	LedgerModeMemory = "memory"

	DefaultLedgerMode           = LedgerModeEVM
	DefaultLedgerRPCURL         = "https://sepolia.base.org"
	DefaultLedgerChainID        = 84532
	DefaultLedgerKeystoreDir    = "./keystore"
	DefaultLedgerConfirmTimeout = 2 * time.Minute
	DefaultLedgerPollInterval   = 2 * time.Second
	DefaultWalletUnlockTTL      = 30 * time.Minute
	DefaultLedgerLockWait       = 2 * time.Second
	DefaultLedgerMemoryFaucet   = "1000"
)
