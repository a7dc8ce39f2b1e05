// Package assets сопоставляет символьные активы адресам в конкретной сети.
package assets

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Идентификаторы поддерживаемых сетей
const (
	ChainEthereum    uint64 = 1
	ChainBase        uint64 = 8453
	ChainBaseSepolia uint64 = 84532

	// DefaultChain используется, когда сеть неизвестна
	DefaultChain = ChainBaseSepolia
)

// Collateral символ залогового стейблкоина
const Collateral = "USDC"

// Asset описывает токен в сети
type Asset struct {
	Symbol   string
	ChainID  uint64
	Address  common.Address
	Decimals int32
}

// Registry таблица адресов активов по сетям
type Registry struct {
	assets       map[uint64]map[string]Asset
	defaultChain uint64
}

// DefaultRegistry адреса USDC для Base, Base Sepolia и Ethereum
func DefaultRegistry() *Registry {
	r := NewRegistry(DefaultChain)
	r.Add(Asset{Symbol: Collateral, ChainID: ChainBase, Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Decimals: 6})
	r.Add(Asset{Symbol: Collateral, ChainID: ChainBaseSepolia, Address: common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"), Decimals: 6})
	r.Add(Asset{Symbol: Collateral, ChainID: ChainEthereum, Address: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), Decimals: 6})
	return r
}

// NewRegistry создает пустой реестр
func NewRegistry(defaultChain uint64) *Registry {
	return &Registry{
		assets:       make(map[uint64]map[string]Asset),
		defaultChain: defaultChain,
	}
}

// Add регистрирует актив
func (r *Registry) Add(a Asset) {
	a.Symbol = strings.ToUpper(a.Symbol)
	if r.assets[a.ChainID] == nil {
		r.assets[a.ChainID] = make(map[string]Asset)
	}
	r.assets[a.ChainID][a.Symbol] = a
}

// Resolve возвращает актив для сети. Для неизвестной сети используется
// сеть по умолчанию.
func (r *Registry) Resolve(chainID uint64, symbol string) (Asset, error) {
	chain, ok := r.assets[chainID]
	if !ok {
		chain = r.assets[r.defaultChain]
	}

	a, ok := chain[strings.ToUpper(symbol)]
	if !ok {
		return Asset{}, fmt.Errorf("asset %s not registered for chain %d", symbol, chainID)
	}
	return a, nil
}

// Lookup ищет актив по адресу во всех сетях
func (r *Registry) Lookup(addr common.Address) (Asset, bool) {
	for _, chain := range r.assets {
		for _, a := range chain {
			if a.Address == addr {
				return a, true
			}
		}
	}
	return Asset{}, false
}
