package service

import (
	"context"
	"fmt"
	"time"

	"gw-lending/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// BalanceView баланс залога владельца в контракте кредитования
type BalanceView struct {
	Owner     string          `json:"owner"`
	Amount    decimal.Decimal `json:"amount"`
	Formatted string          `json:"formatted"`
	// Stale последнее известное значение, свежее чтение не удалось
	Stale     bool      `json:"stale"`
	Err       error     `json:"-"`
	Error     string    `json:"error,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

func (s *LendingService) decimals() int32 {
	if s.collateral.Decimals > 0 {
		return s.collateral.Decimals
	}
	return ledger.CollateralDecimals
}

func (s *LendingService) view(owner common.Address, amount decimal.Decimal, fetchedAt time.Time) BalanceView {
	return BalanceView{
		Owner:     owner.Hex(),
		Amount:    amount,
		Formatted: amount.StringFixed(s.decimals()),
		FetchedAt: fetchedAt,
	}
}

// CollateralBalance читает supplies(owner, token). Свежее значение
// берется из кеша. Если чтение не удалось, а в кеше есть прошлое
// значение, оно возвращается с Stale = true и без ошибки.
func (s *LendingService) CollateralBalance(ctx context.Context, owner common.Address) (BalanceView, error) {
	if amount, ok := s.balances.Get(owner); ok {
		_, fetchedAt, _ := s.balances.Last(owner)
		s.metrics.BalanceReads.WithLabelValues("cached").Inc()
		return s.view(owner, amount, fetchedAt), nil
	}

	supply, err := s.torito.Supplies(ctx, owner, s.collateral.Address)
	if err != nil {
		if last, fetchedAt, ok := s.balances.Last(owner); ok {
			s.metrics.BalanceReads.WithLabelValues("stale").Inc()
			s.logger.Warnf("Collateral balance read failed for %s, serving value from %s: %v",
				owner.Hex(), fetchedAt.Format(time.RFC3339), err)

			v := s.view(owner, last, fetchedAt)
			v.Stale = true
			v.Err = err
			v.Error = err.Error()
			return v, nil
		}

		s.metrics.BalanceReads.WithLabelValues("error").Inc()
		s.logger.Errorf("Failed to read collateral balance for %s: %v", owner.Hex(), err)
		return BalanceView{}, fmt.Errorf("%w: %w", ErrBalanceUnavailable, err)
	}

	amount := ledger.FromUnits(supply.ScaledBalance, s.decimals())
	s.balances.Set(owner, amount)
	s.metrics.BalanceReads.WithLabelValues("fresh").Inc()

	_, fetchedAt, _ := s.balances.Last(owner)
	return s.view(owner, amount, fetchedAt), nil
}

// WalletBalance баланс токена в кошельке владельца (balanceOf)
func (s *LendingService) WalletBalance(ctx context.Context, owner common.Address, asset string) (decimal.Decimal, error) {
	if err := s.resolveAsset(asset); err != nil {
		return decimal.Zero, err
	}

	units, err := s.token.BalanceOf(ctx, owner)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read wallet balance: %w", err)
	}
	return ledger.FromUnits(units, s.decimals()), nil
}

// Invalidate помечает баланс владельца устаревшим
func (s *LendingService) Invalidate(owner common.Address) {
	s.balances.Invalidate(owner)
}

// Refresh перечитывает баланс, минуя кеш
func (s *LendingService) Refresh(ctx context.Context, owner common.Address) (BalanceView, error) {
	s.balances.Invalidate(owner)
	return s.CollateralBalance(ctx, owner)
}
