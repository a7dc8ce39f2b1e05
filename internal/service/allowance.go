package service

import (
	"context"

	"gw-lending/internal/ledger"
	"gw-lending/internal/operation"
	"gw-lending/internal/storages"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// checkAllowance возвращает *AllowanceError, если разрешения не хватает
// или его не удалось прочитать
func (s *LendingService) checkAllowance(ctx context.Context, amount decimal.Decimal, owner, spender common.Address) error {
	allowed, err := s.token.Allowance(ctx, owner, spender)
	if err != nil {
		s.logger.Warnf("Failed to read allowance %s -> %s, approval required: %v", owner.Hex(), spender.Hex(), err)
		return &AllowanceError{Owner: owner, Spender: spender, Required: amount, Err: err}
	}

	have := ledger.FromUnits(allowed, s.decimals())
	if have.LessThan(amount) {
		return &AllowanceError{Owner: owner, Spender: spender, Required: amount, Allowed: have}
	}
	return nil
}

// NeedsApproval true, если разрешение меньше суммы или неизвестно
func (s *LendingService) NeedsApproval(ctx context.Context, amount decimal.Decimal, owner, spender common.Address) bool {
	return s.checkAllowance(ctx, amount, owner, spender) != nil
}

// Approve отправляет approve(spender, amount) от имени подключенного
// кошелька. Возвращает уже запущенную операцию.
func (s *LendingService) Approve(ctx context.Context, amount decimal.Decimal, spender common.Address) (*operation.Operation[ledger.Receipt], error) {
	owner, err := s.identity.Owner(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validateCollateralAmount(amount); err != nil {
		return nil, err
	}

	op := operation.New[ledger.Receipt](storages.KindApprove, owner.Hex())
	track(s, op, eventInfo{kind: storages.KindApprove, owner: owner, amount: amount, value: amount},
		func(r ledger.Receipt) common.Hash { return r.TxHash })

	if err := op.Start(ctx, func(ctx context.Context) (ledger.Receipt, error) {
		return s.approveAndWait(ctx, owner, spender, amount)
	}); err != nil {
		return nil, err
	}
	return op, nil
}

func (s *LendingService) approveAndWait(ctx context.Context, owner, spender common.Address, amount decimal.Decimal) (ledger.Receipt, error) {
	handle, err := s.token.Approve(ctx, owner, spender, ledger.ToUnits(amount, s.decimals()))
	if err != nil {
		return ledger.Receipt{}, txError(storages.KindApprove, err)
	}

	s.logger.Debugf("Approve %s sent by %s for %s", handle.Hash().Hex(), owner.Hex(), amount.String())

	receipt, err := handle.Wait(ctx)
	if err != nil {
		return ledger.Receipt{}, txError(storages.KindApprove, err)
	}
	return receipt, nil
}
