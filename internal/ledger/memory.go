package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Статусы позиции в контракте кредитования
const (
	StatusNone   uint8 = 0
	StatusActive uint8 = 1
	StatusClosed uint8 = 2
)

// WriteCall запись об отправленной транзакции
type WriteCall struct {
	From     common.Address
	Contract common.Address
	Method   string
	Args     []interface{}
}

type positionKey struct {
	owner common.Address
	token common.Address
}

type debtKey struct {
	owner    common.Address
	token    common.Address
	currency [32]byte
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Memory реестр в памяти: один контракт кредитования и один ERC20.
// Используется в режиме LEDGER_MODE=memory и в тестах.
type Memory struct {
	mu sync.Mutex

	contract common.Address
	token    common.Address
	delay    time.Duration
	block    uint64

	balances   map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	supplies   map[positionKey]*big.Int
	statuses   map[positionKey]uint8
	debts      map[debtKey]*big.Int

	readFailures  map[string]error
	writeFailures map[string]error
	reverts       map[string]bool

	writes []WriteCall
}

// NewMemory создает реестр для контракта и залогового токена
func NewMemory(contract, token common.Address) *Memory {
	return &Memory{
		contract:      contract,
		token:         token,
		balances:      make(map[common.Address]*big.Int),
		allowances:    make(map[allowanceKey]*big.Int),
		supplies:      make(map[positionKey]*big.Int),
		statuses:      make(map[positionKey]uint8),
		debts:         make(map[debtKey]*big.Int),
		readFailures:  make(map[string]error),
		writeFailures: make(map[string]error),
		reverts:       make(map[string]bool),
	}
}

// SetDelay задержка подтверждения транзакций
func (m *Memory) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Mint зачисляет токены на адрес
func (m *Memory) Mint(owner common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[owner] = new(big.Int).Add(m.balanceOf(owner), amount)
}

// SetAllowance выставляет разрешение owner -> spender
func (m *Memory) SetAllowance(owner, spender common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{owner, spender}] = new(big.Int).Set(amount)
}

// Debt текущий долг владельца в валюте
func (m *Memory) Debt(owner common.Address, currency [32]byte) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.debts[debtKey{owner, m.token, currency}]; ok {
		return new(big.Int).Set(d)
	}
	return new(big.Int)
}

// FailRead следующий Read метода вернет err
func (m *Memory) FailRead(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readFailures[method] = err
}

// FailWrite следующий Write метода вернет err
func (m *Memory) FailWrite(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeFailures[method] = err
}

// Revert следующая транзакция метода откатится при подтверждении
func (m *Memory) Revert(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reverts[method] = true
}

// Writes отправленные транзакции в порядке отправки
func (m *Memory) Writes() []WriteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WriteCall, len(m.writes))
	copy(out, m.writes)
	return out
}

func (m *Memory) balanceOf(owner common.Address) *big.Int {
	if b, ok := m.balances[owner]; ok {
		return b
	}
	return new(big.Int)
}

func (m *Memory) allowance(owner, spender common.Address) *big.Int {
	if a, ok := m.allowances[allowanceKey{owner, spender}]; ok {
		return a
	}
	return new(big.Int)
}

// Read реализует Client
func (m *Memory) Read(ctx context.Context, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.readFailures[method]; ok {
		delete(m.readFailures, method)
		return nil, err
	}

	switch {
	case contract == m.token && method == "balanceOf":
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		return []interface{}{new(big.Int).Set(m.balanceOf(owner))}, nil

	case contract == m.token && method == "allowance":
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		spender, err := argAddress(args, 1)
		if err != nil {
			return nil, err
		}
		return []interface{}{new(big.Int).Set(m.allowance(owner, spender))}, nil

	case contract == m.contract && method == "supplies":
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		token, err := argAddress(args, 1)
		if err != nil {
			return nil, err
		}
		key := positionKey{owner, token}
		status := m.statuses[key]
		if status == StatusNone {
			return []interface{}{common.Address{}, new(big.Int), common.Address{}, StatusNone}, nil
		}
		scaled := new(big.Int)
		if s, ok := m.supplies[key]; ok {
			scaled.Set(s)
		}
		return []interface{}{owner, scaled, token, status}, nil
	}

	return nil, fmt.Errorf("%s.%s: %w", contract.Hex(), method, ErrUnknownContract)
}

// Write реализует Client. Состояние меняется сразу, подтверждение
// приходит через Wait после задержки.
func (m *Memory) Write(ctx context.Context, from, contract common.Address, method string, args ...interface{}) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.writeFailures[method]; ok {
		delete(m.writeFailures, method)
		return nil, err
	}

	m.writes = append(m.writes, WriteCall{From: from, Contract: contract, Method: method, Args: args})
	hash := m.nextHash(from, method)

	if m.reverts[method] {
		delete(m.reverts, method)
		return &memoryHandle{hash: hash, delay: m.delay, err: fmt.Errorf("%w: %s", ErrReverted, method)}, nil
	}

	if err := m.apply(from, contract, method, args); err != nil {
		return &memoryHandle{hash: hash, delay: m.delay, err: err}, nil
	}

	m.block++
	return &memoryHandle{
		hash:    hash,
		delay:   m.delay,
		receipt: Receipt{TxHash: hash, BlockNumber: m.block, GasUsed: 21000},
	}, nil
}

func (m *Memory) apply(from, contract common.Address, method string, args []interface{}) error {
	switch {
	case contract == m.token && method == "approve":
		spender, err := argAddress(args, 0)
		if err != nil {
			return err
		}
		value, err := argBig(args, 1)
		if err != nil {
			return err
		}
		m.allowances[allowanceKey{from, spender}] = new(big.Int).Set(value)
		return nil

	case contract == m.contract && method == "supply":
		token, err := argAddress(args, 0)
		if err != nil {
			return err
		}
		amount, err := argBig(args, 1)
		if err != nil {
			return err
		}
		if token != m.token {
			return fmt.Errorf("%w: unsupported token %s", ErrReverted, token.Hex())
		}
		allowed := m.allowance(from, m.contract)
		if allowed.Cmp(amount) < 0 {
			return fmt.Errorf("%w: insufficient allowance", ErrReverted)
		}
		balance := m.balanceOf(from)
		if balance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: insufficient balance", ErrReverted)
		}
		m.balances[from] = new(big.Int).Sub(balance, amount)
		m.allowances[allowanceKey{from, m.contract}] = new(big.Int).Sub(allowed, amount)

		key := positionKey{from, token}
		current := new(big.Int)
		if s, ok := m.supplies[key]; ok {
			current.Set(s)
		}
		m.supplies[key] = current.Add(current, amount)
		m.statuses[key] = StatusActive
		return nil

	case contract == m.contract && method == "borrow":
		token, err := argAddress(args, 0)
		if err != nil {
			return err
		}
		amount, err := argBig(args, 1)
		if err != nil {
			return err
		}
		currency, err := argBytes32(args, 2)
		if err != nil {
			return err
		}
		if m.statuses[positionKey{from, token}] != StatusActive {
			return fmt.Errorf("%w: no active supply", ErrReverted)
		}
		key := debtKey{from, token, currency}
		current := new(big.Int)
		if d, ok := m.debts[key]; ok {
			current.Set(d)
		}
		m.debts[key] = current.Add(current, amount)
		return nil

	case contract == m.contract && method == "repay":
		token, err := argAddress(args, 0)
		if err != nil {
			return err
		}
		amount, err := argBig(args, 1)
		if err != nil {
			return err
		}
		currency, err := argBytes32(args, 2)
		if err != nil {
			return err
		}
		key := debtKey{from, token, currency}
		current, ok := m.debts[key]
		if !ok || current.Cmp(amount) < 0 {
			return fmt.Errorf("%w: repay exceeds debt", ErrReverted)
		}
		m.debts[key] = new(big.Int).Sub(current, amount)
		return nil
	}

	return fmt.Errorf("%s.%s: %w", contract.Hex(), method, ErrUnknownContract)
}

func (m *Memory) nextHash(from common.Address, method string) common.Hash {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], uint64(len(m.writes)))
	return crypto.Keccak256Hash(from.Bytes(), []byte(method), seq[:])
}

func argAddress(args []interface{}, i int) (common.Address, error) {
	if i >= len(args) {
		return common.Address{}, fmt.Errorf("missing argument %d", i)
	}
	v, ok := args[i].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("argument %d: expected address, got %T", i, args[i])
	}
	return v, nil
}

func argBig(args []interface{}, i int) (*big.Int, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing argument %d", i)
	}
	v, ok := args[i].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("argument %d: expected uint256, got %T", i, args[i])
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative uint256", ErrReverted)
	}
	return v, nil
}

func argBytes32(args []interface{}, i int) ([32]byte, error) {
	if i >= len(args) {
		return [32]byte{}, fmt.Errorf("missing argument %d", i)
	}
	v, ok := args[i].([32]byte)
	if !ok {
		return [32]byte{}, fmt.Errorf("argument %d: expected bytes32, got %T", i, args[i])
	}
	return v, nil
}

type memoryHandle struct {
	hash    common.Hash
	delay   time.Duration
	receipt Receipt
	err     error
}

func (h *memoryHandle) Hash() common.Hash { return h.hash }

func (h *memoryHandle) Wait(ctx context.Context) (Receipt, error) {
	if h.delay > 0 {
		timer := time.NewTimer(h.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Receipt{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case <-timer.C:
		}
	}
	if h.err != nil {
		return Receipt{}, h.err
	}
	return h.receipt, nil
}
