package service

import (
	"context"
	"fmt"

	"gw-lending/internal/rates"
	"gw-lending/internal/storages"
	"gw-lending/pkg"

	"github.com/shopspring/decimal"
)

// PositionView позиция с остатком долга для страницы долга
type PositionView struct {
	storages.BorrowPosition
	Remaining decimal.Decimal `json:"remaining"`
	// RemainingCollateral остаток в единицах залога по текущему курсу
	RemainingCollateral decimal.Decimal `json:"remaining_collateral"`
	Symbol              string          `json:"symbol"`
	BorrowedDisplay     string          `json:"borrowed_display"`
	RemainingDisplay    string          `json:"remaining_display"`
}

// ListPositions позиции подключенного кошелька
func (s *LendingService) ListPositions(ctx context.Context) ([]PositionView, error) {
	owner, err := s.identity.Owner(ctx)
	if err != nil {
		return nil, err
	}

	positions, err := s.storage.ListPositions(ctx, owner.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		remaining := p.Remaining()
		v := PositionView{
			BorrowPosition:   p,
			Remaining:        remaining,
			BorrowedDisplay:  pkg.FormatAmount(p.BorrowedAmount, FiatScale),
			RemainingDisplay: pkg.FormatAmount(remaining, FiatScale),
		}
		if c, err := s.rates.LookupCode(p.CurrencyCode); err == nil {
			v.Symbol = c.Symbol
			v.RemainingCollateral = rates.ConvertToCollateral(remaining, c)
		} else {
			s.logger.Warnf("Position %d has unknown currency %s", p.ID, p.CurrencyCode)
		}
		views = append(views, v)
	}
	return views, nil
}

// Position одна позиция подключенного кошелька
func (s *LendingService) Position(ctx context.Context, id int64) (*storages.BorrowPosition, error) {
	owner, err := s.identity.Owner(ctx)
	if err != nil {
		return nil, err
	}
	return s.ownedPosition(ctx, owner, id)
}
