// Package ledger узкая граница между сервисом и внешним реестром:
// чтение состояния контрактов и отправка транзакций.
package ledger

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Причины неудачи транзакции. Реализации оборачивают исходную ошибку
// одной из этих.
var (
	ErrRejected = errors.New("transaction rejected by signer")
	ErrReverted = errors.New("execution reverted")
	ErrTimeout  = errors.New("transaction confirmation timed out")
	ErrNetwork  = errors.New("ledger network failure")

	ErrUnknownContract = errors.New("contract not registered")
)

// Receipt подтверждение включения транзакции в блок
type Receipt struct {
	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
	GasUsed     uint64      `json:"gas_used"`
}

// Handle отправленная транзакция, которая позже подтвердится или упадет
type Handle interface {
	Hash() common.Hash
	Wait(ctx context.Context) (Receipt, error)
}

// Client операции чтения и записи контрактов
type Client interface {
	// Read вызывает view-функцию и возвращает распакованные выходы
	Read(ctx context.Context, contract common.Address, method string, args ...interface{}) ([]interface{}, error)

	// Write подписывает от имени from и отправляет транзакцию
	Write(ctx context.Context, from, contract common.Address, method string, args ...interface{}) (Handle, error)
}
