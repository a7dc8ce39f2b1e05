package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gw-lending/internal/api"
	"gw-lending/internal/api/handlers"
	"gw-lending/internal/api/middleware"
	"gw-lending/internal/assets"
	"gw-lending/internal/cache"
	"gw-lending/internal/config"
	"gw-lending/internal/grpc"
	"gw-lending/internal/identity"
	"gw-lending/internal/kafka"
	"gw-lending/internal/ledger"
	"gw-lending/internal/logger"
	"gw-lending/internal/metrics"
	"gw-lending/internal/operation"
	"gw-lending/internal/rates"
	"gw-lending/internal/service"
	"gw-lending/internal/storages"
	"gw-lending/internal/storages/memory"
	"gw-lending/internal/storages/postgres"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// @title Lending API
// @version 1.0
// @description Collateralised stablecoin lending: supply USDC, borrow local currency, repay
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// demoContract адрес контракта для LEDGER_MODE=memory без настроенного адреса
var demoContract = common.HexToAddress("0x0000000000000000000000000000000000707170")

func main() {
	// Парсинг флагов командной строки
	configPath := flag.String("c", "", "Path to config file")
	flag.Parse()

	// Загрузка конфигурации
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Валидация конфигурации
	if err := cfg.ValidateLending(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	log := logger.New(cfg.Logger.Level, "gw-lending")
	log.Info("Starting gw-lending service...")
	log.Infof("Configuration loaded from: %s", *configPath)

	m := metrics.New()

	// Залоговый актив в выбранной сети
	registry := assets.DefaultRegistry()
	collateral, err := registry.Resolve(cfg.Ledger.ChainID, assets.Collateral)
	if err != nil {
		log.Fatalf("Failed to resolve collateral asset: %v", err)
	}
	log.Infof("Collateral %s at %s on chain %d", collateral.Symbol, collateral.Address.Hex(), collateral.ChainID)

	// Хранилище позиций
	storage, err := openStorage(cfg, log)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer storage.Close()

	// Таблица курсов
	table := loadRates(cfg, log)

	// Сеть и кошельки
	contract := cfg.Ledger.Contract()
	var (
		client   ledger.Client
		sessions handlers.Sessions
	)
	switch cfg.Ledger.Mode {
	case config.LedgerModeMemory:
		if cfg.Ledger.ContractAddress == "" {
			contract = demoContract
		}
		mem := ledger.NewMemory(contract, collateral.Address)
		client = mem
		sessions = &faucetSessions{
			OpenProvider: identity.NewOpenProvider(cfg.Ledger.UnlockTTL),
			ledger:       mem,
			amount:       ledger.ToUnits(cfg.Ledger.MemoryFaucet, collateral.Decimals),
			funded:       make(map[common.Address]bool),
		}
		log.Warn("Ledger running in memory mode, balances are not persisted")
	default:
		ks := keystore.NewKeyStore(cfg.Ledger.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)
		evm, err := ledger.DialEVM(ledger.EVMConfig{
			RPCURL:         cfg.Ledger.RPCURL,
			ChainID:        cfg.Ledger.ChainID,
			ConfirmTimeout: cfg.Ledger.ConfirmTimeout,
			PollInterval:   cfg.Ledger.PollInterval,
		}, ks, log)
		if err != nil {
			log.Fatalf("Failed to connect to ledger: %v", err)
		}
		if err := evm.Register(contract, ledger.ToritoABI); err != nil {
			log.Fatalf("Failed to register lending contract: %v", err)
		}
		if err := evm.Register(collateral.Address, ledger.ERC20ABI); err != nil {
			log.Fatalf("Failed to register collateral token: %v", err)
		}
		client = evm
		sessions = identity.NewKeystoreProvider(ks, cfg.Ledger.UnlockTTL, log)
		log.Infof("Keystore loaded from %s with %d accounts", cfg.Ledger.KeystoreDir, len(ks.Accounts()))
	}

	// Инициализация Kafka producer
	var events service.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.LargeAmountThreshold, log)
		defer producer.Close()
		events = producer
	} else {
		log.Warn("Kafka disabled, operation events are not published")
	}

	operations := operation.NewRegistry(cfg.Cache.OperationRetention)

	// Создание сервисного слоя
	lendingService := service.NewLendingService(service.Deps{
		Ledger:     client,
		Contract:   contract,
		Collateral: collateral,
		Assets:     registry,
		Rates:      table,
		Identity:   sessions,
		Storage:    storage,
		Balances:   cache.NewBalanceCache(cfg.Cache.BalanceTTL),
		Operations: operations,
		Events:     events,
		Metrics:    m,
		Logger:     log,
		LockWait:   cfg.Ledger.LockWait,
	})
	log.Info("Lending service initialized")

	if cfg.Reviewer.Bootstrap() {
		created, err := lendingService.EnsureReviewer(context.Background(), cfg.Reviewer.Username, cfg.Reviewer.Email, cfg.Reviewer.Password)
		if err != nil {
			log.Fatalf("Failed to create reviewer %s: %v", cfg.Reviewer.Username, err)
		}
		if created {
			log.Infof("Reviewer %s created from config", cfg.Reviewer.Username)
		}
	} else {
		log.Warn("REVIEWER_ADMIN_USERNAME is not set, new reviewers can only be registered by existing ones")
	}

	jwtMiddleware := middleware.NewJWTMiddleware(cfg.JWT.Secret, log)
	router := api.SetupRouter(lendingService, sessions, jwtMiddleware, m, log, cfg.Server.GinMode, cfg.JWT.Expiration)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Завершенные операции удаляются из реестра по истечении хранения,
	// незаписанные заемы дописываются в позиции
	go func() {
		ticker := time.NewTicker(max(cfg.Cache.OperationRetention/2, time.Minute))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if removed := operations.Prune(now); removed > 0 {
					log.Debugf("Pruned %d settled operations", removed)
				}
				if recorded, left := lendingService.ReconcileBorrows(ctx); recorded+left > 0 {
					log.Infof("Reconciled %d borrows, %d still unrecorded", recorded, left)
				}
			}
		}
	}()

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infof("HTTP server is listening on port %s", cfg.Server.HTTPPort)
		log.Infof("Swagger documentation available at: http://localhost:%s/swagger/index.html", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	<-done
	log.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped gracefully")
}

func openStorage(cfg *config.Config, log *logrus.Logger) (storages.Storage, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		log.Warn("Using in-memory storage, positions are lost on restart")
		return memory.New(), nil
	}

	storage, err := postgres.New(&postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, log)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := storage.Ping(ctx); err != nil {
		storage.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("Database connection established")
	return storage, nil
}

// loadRates таблица от gw-rates или встроенная, если сервис недоступен
func loadRates(cfg *config.Config, log *logrus.Logger) *rates.Table {
	if !cfg.Rates.Enabled {
		return rates.DefaultTable()
	}

	client, err := grpc.NewRatesClient(cfg.Rates.Address(), cfg.Rates.Timeout, log)
	if err != nil {
		log.Warnf("Failed to create rates client: %v, using built-in table", err)
		return rates.DefaultTable()
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Rates.Timeout)
	defer cancel()

	table, err := client.FetchTable(ctx)
	if err != nil {
		log.Warnf("Rates service unavailable: %v, using built-in table", err)
		return rates.DefaultTable()
	}
	log.Infof("Loaded %d currencies from rates service", len(table.All()))
	return table
}

// faucetSessions в режиме memory начисляет залог кошельку при первом
// подключении
type faucetSessions struct {
	*identity.OpenProvider
	ledger *ledger.Memory
	amount *big.Int

	mu     sync.Mutex
	funded map[common.Address]bool
}

func (f *faucetSessions) Connect(ctx context.Context, address common.Address, passphrase string) (time.Time, error) {
	expiresAt, err := f.OpenProvider.Connect(ctx, address, passphrase)
	if err != nil {
		return expiresAt, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.funded[address] && f.amount.Sign() > 0 {
		f.ledger.Mint(address, f.amount)
		f.funded[address] = true
	}
	return expiresAt, nil
}
