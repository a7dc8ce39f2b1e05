package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Десятичность сумм на контракте
const (
	CollateralDecimals int32 = 6
	FiatDecimals       int32 = 18
)

// ToUnits переводит сумму в целые единицы токена. Дробная часть
// сверх decimals отбрасывается.
func ToUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FromUnits переводит целые единицы в десятичную сумму
func FromUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

// Supply позиция в контракте
type Supply struct {
	Owner         common.Address
	ScaledBalance *big.Int
	Token         common.Address
	Status        uint8
}

// Active позиция открыта
func (s Supply) Active() bool {
	return s.Status == StatusActive
}

// Torito типизированная обертка над контрактом кредитования
type Torito struct {
	client  Client
	address common.Address
}

// NewTorito создает обертку над контрактом по адресу
func NewTorito(client Client, address common.Address) *Torito {
	return &Torito{client: client, address: address}
}

// Address адрес контракта
func (t *Torito) Address() common.Address { return t.address }

// Supplies читает позицию владельца по токену
func (t *Torito) Supplies(ctx context.Context, owner, token common.Address) (Supply, error) {
	out, err := t.client.Read(ctx, t.address, "supplies", owner, token)
	if err != nil {
		return Supply{}, err
	}
	if len(out) != 4 {
		return Supply{}, fmt.Errorf("supplies: unexpected output length %d", len(out))
	}

	var s Supply
	var ok bool
	if s.Owner, ok = out[0].(common.Address); !ok {
		return Supply{}, fmt.Errorf("supplies: owner has type %T", out[0])
	}
	if s.ScaledBalance, ok = out[1].(*big.Int); !ok {
		return Supply{}, fmt.Errorf("supplies: scaledBalance has type %T", out[1])
	}
	if s.Token, ok = out[2].(common.Address); !ok {
		return Supply{}, fmt.Errorf("supplies: token has type %T", out[2])
	}
	if s.Status, ok = out[3].(uint8); !ok {
		return Supply{}, fmt.Errorf("supplies: status has type %T", out[3])
	}
	return s, nil
}

// Supply вносит залог
func (t *Torito) Supply(ctx context.Context, from, token common.Address, amount *big.Int) (Handle, error) {
	return t.client.Write(ctx, from, t.address, "supply", token, amount)
}

// Borrow берет заем в фиатной валюте
func (t *Torito) Borrow(ctx context.Context, from, token common.Address, amount *big.Int, currency [32]byte) (Handle, error) {
	return t.client.Write(ctx, from, t.address, "borrow", token, amount, currency)
}

// Repay гасит долг в фиатной валюте
func (t *Torito) Repay(ctx context.Context, from, token common.Address, amount *big.Int, currency [32]byte) (Handle, error) {
	return t.client.Write(ctx, from, t.address, "repay", token, amount, currency)
}

// ERC20 типизированная обертка над токеном
type ERC20 struct {
	client  Client
	address common.Address
}

// NewERC20 создает обертку над токеном по адресу
func NewERC20(client Client, address common.Address) *ERC20 {
	return &ERC20{client: client, address: address}
}

// Address адрес токена
func (e *ERC20) Address() common.Address { return e.address }

// BalanceOf баланс владельца в единицах токена
func (e *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := e.client.Read(ctx, e.address, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return singleBig("balanceOf", out)
}

// Allowance разрешение owner -> spender
func (e *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := e.client.Read(ctx, e.address, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return singleBig("allowance", out)
}

// Approve выдает разрешение spender
func (e *ERC20) Approve(ctx context.Context, from, spender common.Address, value *big.Int) (Handle, error) {
	return e.client.Write(ctx, from, e.address, "approve", spender, value)
}

func singleBig(method string, out []interface{}) (*big.Int, error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("%s: unexpected output length %d", method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: output has type %T", method, out[0])
	}
	return v, nil
}
