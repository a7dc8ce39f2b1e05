package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// Backend подмножество RPC узла, которое использует EVMClient
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Signer подписывает транзакции от имени владельца
type Signer interface {
	SignTx(account accounts.Account, tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error)
}

// EVMConfig параметры подключения к EVM-сети
type EVMConfig struct {
	RPCURL         string
	ChainID        uint64
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// EVMClient реализация Client поверх JSON-RPC узла
type EVMClient struct {
	backend        Backend
	signer         Signer
	chainID        *big.Int
	confirmTimeout time.Duration
	pollInterval   time.Duration
	logger         *logrus.Logger

	mu        sync.RWMutex
	contracts map[common.Address]*bind.BoundContract
}

// DialEVM подключается к узлу по RPC
func DialEVM(cfg EVMConfig, signer *keystore.KeyStore, logger *logrus.Logger) (*EVMClient, error) {
	endpoint := strings.TrimSpace(cfg.RPCURL)
	if endpoint == "" {
		return nil, fmt.Errorf("ledger rpc endpoint required")
	}

	client, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger rpc: %w", err)
	}

	logger.Infof("Connected to ledger RPC at %s (chain %d)", endpoint, cfg.ChainID)
	return NewEVMClient(client, signer, cfg, logger), nil
}

// NewEVMClient создает клиент поверх готового backend
func NewEVMClient(backend Backend, signer Signer, cfg EVMConfig, logger *logrus.Logger) *EVMClient {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &EVMClient{
		backend:        backend,
		signer:         signer,
		chainID:        new(big.Int).SetUint64(cfg.ChainID),
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   poll,
		logger:         logger,
		contracts:      make(map[common.Address]*bind.BoundContract),
	}
}

// Register добавляет ABI контракта по адресу
func (c *EVMClient) Register(address common.Address, abiJSON string) error {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return fmt.Errorf("failed to parse abi for %s: %w", address.Hex(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[address] = bind.NewBoundContract(address, parsed, c.backend, c.backend, c.backend)
	return nil
}

func (c *EVMClient) bound(address common.Address) (*bind.BoundContract, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	contract, ok := c.contracts[address]
	if !ok {
		return nil, fmt.Errorf("%s: %w", address.Hex(), ErrUnknownContract)
	}
	return contract, nil
}

// Read вызывает view-функцию контракта
func (c *EVMClient) Read(ctx context.Context, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	bc, err := c.bound(contract)
	if err != nil {
		return nil, err
	}

	var out []interface{}
	if err := bc.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		c.logger.Debugf("Ledger read %s.%s failed: %v", contract.Hex(), method, err)
		return nil, classify(ctx, err)
	}
	return out, nil
}

// Write подписывает и отправляет транзакцию
func (c *EVMClient) Write(ctx context.Context, from, contract common.Address, method string, args ...interface{}) (Handle, error) {
	bc, err := c.bound(contract)
	if err != nil {
		return nil, err
	}

	account := accounts.Account{Address: from}
	opts := &bind.TransactOpts{
		From:    from,
		Context: ctx,
		Signer: func(addr common.Address, tx *gethtypes.Transaction) (*gethtypes.Transaction, error) {
			if addr != from {
				return nil, fmt.Errorf("%w: signer %s does not match %s", ErrRejected, addr.Hex(), from.Hex())
			}
			signed, err := c.signer.SignTx(account, tx, c.chainID)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRejected, err)
			}
			return signed, nil
		},
	}

	tx, err := bc.Transact(opts, method, args...)
	if err != nil {
		c.logger.Warnf("Ledger write %s.%s from %s failed: %v", contract.Hex(), method, from.Hex(), err)
		return nil, classify(ctx, err)
	}

	c.logger.Infof("Submitted %s.%s from %s: tx=%s", contract.Hex(), method, from.Hex(), tx.Hash().Hex())
	return &evmHandle{client: c, hash: tx.Hash()}, nil
}

// waitMined опрашивает узел до появления квитанции
func (c *EVMClient) waitMined(ctx context.Context, hash common.Hash) (Receipt, error) {
	if c.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.confirmTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return Receipt{}, fmt.Errorf("%w: transaction %s failed", ErrReverted, hash.Hex())
			}
			out := Receipt{TxHash: hash, GasUsed: receipt.GasUsed}
			if receipt.BlockNumber != nil {
				out.BlockNumber = receipt.BlockNumber.Uint64()
			}
			return out, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			c.logger.Debugf("Receipt lookup for %s failed: %v", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return Receipt{}, classify(ctx, ctx.Err())
		case <-ticker.C:
		}
	}
}

// classify приводит ошибку RPC к одной из причин пакета
func classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRejected), errors.Is(err, ErrReverted),
		errors.Is(err, ErrTimeout), errors.Is(err, ErrNetwork):
		return err
	case errors.Is(err, keystore.ErrLocked), errors.Is(err, keystore.ErrNoMatch):
		return fmt.Errorf("%w: %v", ErrRejected, err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case strings.Contains(err.Error(), "execution reverted"):
		return fmt.Errorf("%w: %v", ErrReverted, err)
	default:
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
}

type evmHandle struct {
	client *EVMClient
	hash   common.Hash
}

func (h *evmHandle) Hash() common.Hash { return h.hash }

func (h *evmHandle) Wait(ctx context.Context) (Receipt, error) {
	return h.client.waitMined(ctx, h.hash)
}
