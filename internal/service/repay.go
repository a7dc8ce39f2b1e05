package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gw-lending/internal/codec"
	"gw-lending/internal/ledger"
	"gw-lending/internal/operation"
	"gw-lending/internal/rates"
	"gw-lending/internal/storages"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// RepayResult результат подтвержденного погашения
type RepayResult struct {
	Receipt  ledger.Receipt           `json:"receipt"`
	Position *storages.BorrowPosition `json:"position"`
}

// ownedPosition позиция владельца. Чужая позиция не отличается от
// несуществующей.
func (s *LendingService) ownedPosition(ctx context.Context, owner common.Address, id int64) (*storages.BorrowPosition, error) {
	position, err := s.storage.GetPosition(ctx, id)
	if err != nil {
		if errors.Is(err, storages.ErrNotFound) {
			return nil, fmt.Errorf("position %d: %w", id, ErrPositionNotFound)
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	if !strings.EqualFold(position.Owner, owner.Hex()) {
		return nil, fmt.Errorf("position %d: %w", id, ErrPositionNotFound)
	}
	return position, nil
}

func validateRepayment(position *storages.BorrowPosition, amount decimal.Decimal) error {
	if err := validateAmount(amount, FiatScale); err != nil {
		return err
	}

	remaining := position.Remaining()
	if position.Status != storages.PositionStatusActive {
		remaining = decimal.Zero
	}
	if amount.GreaterThan(remaining) {
		return &OverpaymentError{PositionID: position.ID, Amount: amount, Remaining: remaining}
	}
	return nil
}

// applyRepayment увеличивает total_repaid. Гонку с другим погашением
// хранилище отклоняет через ErrConflict.
func (s *LendingService) applyRepayment(ctx context.Context, position *storages.BorrowPosition, amount decimal.Decimal) (*storages.BorrowPosition, error) {
	updated, err := s.storage.ApplyRepayment(ctx, position.ID, amount)
	if err != nil {
		if errors.Is(err, storages.ErrConflict) {
			remaining := decimal.Zero
			if current, getErr := s.storage.GetPosition(ctx, position.ID); getErr == nil && current.Status == storages.PositionStatusActive {
				remaining = current.Remaining()
			}
			return nil, &OverpaymentError{PositionID: position.ID, Amount: amount, Remaining: remaining}
		}
		return nil, fmt.Errorf("failed to apply repayment: %w", err)
	}

	if updated.Status == storages.PositionStatusRepaid {
		s.logger.Infof("Position %d repaid in full by %s", updated.ID, updated.Owner)
	}
	return updated, nil
}

// Repay погашает часть долга по позиции через контракт. Погашения одной
// позиции выполняются по очереди, блокировка держится до завершения
// операции.
func (s *LendingService) Repay(ctx context.Context, positionID int64, amount decimal.Decimal) (*operation.Operation[RepayResult], error) {
	owner, err := s.identity.Owner(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.positionLocks.acquire(ctx, positionID); err != nil {
		return nil, err
	}
	started := false
	defer func() {
		if !started {
			s.positionLocks.release(positionID)
		}
	}()

	// читаем после блокировки, чтобы видеть завершенные погашения
	position, err := s.ownedPosition(ctx, owner, positionID)
	if err != nil {
		return nil, err
	}
	if err := validateRepayment(position, amount); err != nil {
		return nil, err
	}

	c, err := s.rates.LookupCode(position.CurrencyCode)
	if err != nil {
		return nil, fmt.Errorf("position %d: %w", position.ID, err)
	}
	currency, err := codec.EncodeCurrency(c.Code)
	if err != nil {
		return nil, invalid("currency", err)
	}

	op := operation.New[RepayResult](storages.KindRepay, owner.Hex())
	track(s, op, eventInfo{
		kind:     storages.KindRepay,
		owner:    owner,
		currency: c.Code,
		amount:   amount,
		value:    rates.ConvertToCollateral(amount, c),
	}, func(r RepayResult) common.Hash { return r.Receipt.TxHash })

	if err := op.Start(ctx, func(ctx context.Context) (RepayResult, error) {
		defer s.positionLocks.release(positionID)

		handle, err := s.torito.Repay(ctx, owner, s.collateral.Address, ledger.ToUnits(amount, ledger.FiatDecimals), currency)
		if err != nil {
			return RepayResult{}, txError(storages.KindRepay, err)
		}
		receipt, err := handle.Wait(ctx)
		if err != nil {
			return RepayResult{}, txError(storages.KindRepay, err)
		}

		updated, err := s.applyRepayment(ctx, position, amount)
		if err != nil {
			return RepayResult{}, err
		}
		return RepayResult{Receipt: receipt, Position: updated}, nil
	}); err != nil {
		return nil, err
	}
	started = true
	return op, nil
}
