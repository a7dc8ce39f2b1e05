package service

import (
	"context"

	"gw-lending/internal/ledger"
	"gw-lending/internal/operation"
	"gw-lending/internal/storages"
	"gw-lending/pkg"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DepositResult результат составной операции депозита
type DepositResult struct {
	Approval *ledger.Receipt `json:"approval,omitempty"`
	Supply   ledger.Receipt  `json:"supply"`
	Balance  BalanceView     `json:"balance"`
}

// validateAmount сумма положительна и имеет не больше places знаков
func validateAmount(amount decimal.Decimal, places int32) error {
	if err := pkg.ValidateAmount(amount); err != nil {
		return invalid("amount", err)
	}
	if !amount.Equal(amount.Truncate(places)) {
		return invalid("amount", ErrPrecision)
	}
	return nil
}

// validateCollateralAmount сумма не точнее токена
func (s *LendingService) validateCollateralAmount(amount decimal.Decimal) error {
	return validateAmount(amount, s.decimals())
}

func (s *LendingService) validateSupply(ctx context.Context, owner common.Address, amount decimal.Decimal, asset string) error {
	if err := s.resolveAsset(asset); err != nil {
		return err
	}
	if err := s.validateCollateralAmount(amount); err != nil {
		return err
	}

	balance, err := s.WalletBalance(ctx, owner, asset)
	if err != nil {
		return err
	}
	if amount.GreaterThan(balance) {
		return invalid("amount", ErrInsufficientFunds)
	}
	return nil
}

// Supply отправляет supply(token, amount). Разрешение должно уже быть,
// иначе возвращается *AllowanceError и транзакция не отправляется.
func (s *LendingService) Supply(ctx context.Context, amount decimal.Decimal, asset string) (*operation.Operation[ledger.Receipt], error) {
	owner, err := s.identity.Owner(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validateSupply(ctx, owner, amount, asset); err != nil {
		return nil, err
	}
	if err := s.checkAllowance(ctx, amount, owner, s.torito.Address()); err != nil {
		return nil, err
	}

	op := operation.New[ledger.Receipt](storages.KindSupply, owner.Hex())
	track(s, op, eventInfo{kind: storages.KindSupply, owner: owner, amount: amount, value: amount},
		func(r ledger.Receipt) common.Hash { return r.TxHash })

	if err := op.Start(ctx, func(ctx context.Context) (ledger.Receipt, error) {
		receipt, err := s.supplyAndWait(ctx, owner, amount)
		if err != nil {
			return ledger.Receipt{}, err
		}
		s.refreshAfterSupply(ctx, owner)
		return receipt, nil
	}); err != nil {
		return nil, err
	}
	return op, nil
}

// Deposit одобряет токен при необходимости, дожидается подтверждения
// и вносит залог. Если approve не прошел, supply не отправляется.
func (s *LendingService) Deposit(ctx context.Context, amount decimal.Decimal, asset string) (*operation.Operation[DepositResult], error) {
	owner, err := s.identity.Owner(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validateSupply(ctx, owner, amount, asset); err != nil {
		return nil, err
	}

	spender := s.torito.Address()
	op := operation.New[DepositResult](storages.KindDeposit, owner.Hex())
	track(s, op, eventInfo{kind: storages.KindDeposit, owner: owner, amount: amount, value: amount},
		func(r DepositResult) common.Hash { return r.Supply.TxHash })

	if err := op.Start(ctx, func(ctx context.Context) (DepositResult, error) {
		var result DepositResult

		if s.NeedsApproval(ctx, amount, owner, spender) {
			approval, err := s.approveAndWait(ctx, owner, spender, amount)
			if err != nil {
				return DepositResult{}, err
			}
			result.Approval = &approval
		}

		receipt, err := s.supplyAndWait(ctx, owner, amount)
		if err != nil {
			return DepositResult{}, err
		}
		result.Supply = receipt
		result.Balance = s.refreshAfterSupply(ctx, owner)
		return result, nil
	}); err != nil {
		return nil, err
	}
	return op, nil
}

func (s *LendingService) supplyAndWait(ctx context.Context, owner common.Address, amount decimal.Decimal) (ledger.Receipt, error) {
	handle, err := s.torito.Supply(ctx, owner, s.collateral.Address, ledger.ToUnits(amount, s.decimals()))
	if err != nil {
		return ledger.Receipt{}, txError(storages.KindSupply, err)
	}

	s.logger.Debugf("Supply %s sent by %s for %s", handle.Hash().Hex(), owner.Hex(), amount.String())

	receipt, err := handle.Wait(ctx)
	if err != nil {
		return ledger.Receipt{}, txError(storages.KindSupply, err)
	}
	return receipt, nil
}

// refreshAfterSupply сбрасывает кеш и перечитывает баланс. Ошибка
// чтения не отменяет подтвержденный депозит.
func (s *LendingService) refreshAfterSupply(ctx context.Context, owner common.Address) BalanceView {
	s.Invalidate(owner)
	view, err := s.Refresh(ctx, owner)
	if err != nil {
		s.logger.Warnf("Balance refresh after supply failed for %s: %v", owner.Hex(), err)
		return BalanceView{Owner: owner.Hex(), Stale: true, Err: err, Error: err.Error()}
	}
	return view
}
