package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gw-lending/internal/rates"
	"gw-lending/internal/storages"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubmitReceipt регистрирует квитанцию об оплате долга вне сети.
// Долг не меняется до проверки оператором.
func (s *LendingService) SubmitReceipt(ctx context.Context, positionID int64, amount decimal.Decimal, imageRef string) (*storages.Receipt, error) {
	owner, err := s.identity.Owner(ctx)
	if err != nil {
		return nil, err
	}

	position, err := s.ownedPosition(ctx, owner, positionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(imageRef) == "" {
		return nil, invalid("image", ErrMissingEvidence)
	}
	if err := validateRepayment(position, amount); err != nil {
		return nil, err
	}

	receipt := &storages.Receipt{
		ID:         uuid.NewString(),
		PositionID: position.ID,
		Owner:      owner.Hex(),
		Amount:     amount,
		ImageRef:   imageRef,
		Status:     storages.ReceiptStatusSubmitted,
	}
	if err := s.storage.CreateReceipt(ctx, receipt); err != nil {
		return nil, fmt.Errorf("failed to create receipt: %w", err)
	}

	s.logger.Infof("Receipt %s submitted by %s for position %d: %s %s",
		receipt.ID, receipt.Owner, position.ID, amount.StringFixed(FiatScale), position.CurrencyCode)
	s.publishReceipt(ctx, receipt, position)
	return receipt, nil
}

// OwnerReceipts квитанции текущего владельца со статусом проверки.
// positionID 0 значит по всем его позициям.
func (s *LendingService) OwnerReceipts(ctx context.Context, positionID int64) ([]storages.Receipt, error) {
	owner, err := s.identity.Owner(ctx)
	if err != nil {
		return nil, err
	}
	if positionID != 0 {
		if _, err := s.ownedPosition(ctx, owner, positionID); err != nil {
			return nil, err
		}
	}

	receipts, err := s.storage.ListReceiptsByOwner(ctx, owner.Hex(), positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	return receipts, nil
}

// StartReview берет квитанцию в проверку
func (s *LendingService) StartReview(ctx context.Context, id, reviewer string) (*storages.Receipt, error) {
	receipt, err := s.transitionReceipt(ctx, id, storages.ReceiptStatusSubmitted, storages.ReceiptStatusUnderReview, reviewer, "")
	if err != nil {
		return nil, err
	}
	s.publishReceipt(ctx, receipt, nil)
	return receipt, nil
}

// VerifyReceipt подтверждает квитанцию и применяет погашение к позиции.
// Переплата проверяется повторно, долг мог измениться после подачи.
func (s *LendingService) VerifyReceipt(ctx context.Context, id, reviewer string) (*storages.Receipt, error) {
	current, err := s.getReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != storages.ReceiptStatusUnderReview {
		return nil, fmt.Errorf("receipt %s is %s: %w", id, current.Status, ErrReceiptState)
	}

	if err := s.positionLocks.acquire(ctx, current.PositionID); err != nil {
		return nil, err
	}
	defer s.positionLocks.release(current.PositionID)

	position, err := s.storage.GetPosition(ctx, current.PositionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get position %d: %w", current.PositionID, err)
	}
	if err := validateRepayment(position, current.Amount); err != nil {
		return nil, err
	}

	verified, err := s.transitionReceipt(ctx, id, storages.ReceiptStatusUnderReview, storages.ReceiptStatusVerified, reviewer, "")
	if err != nil {
		return nil, err
	}

	updated, err := s.applyRepayment(ctx, position, current.Amount)
	if err != nil {
		// квитанция возвращается в проверку, позиция не изменилась
		if _, revertErr := s.storage.UpdateReceiptStatus(ctx, id,
			storages.ReceiptStatusVerified, storages.ReceiptStatusUnderReview, reviewer, ""); revertErr != nil {
			s.logger.Errorf("Failed to return receipt %s to review: %v", id, revertErr)
		}
		return nil, err
	}

	s.logger.Infof("Receipt %s verified by %s, position %d remaining %s",
		id, reviewer, updated.ID, updated.Remaining().StringFixed(FiatScale))
	s.publishReceipt(ctx, verified, updated)
	return verified, nil
}

// RejectReceipt отклоняет квитанцию с причиной. Долг не меняется.
func (s *LendingService) RejectReceipt(ctx context.Context, id, reviewer, reason string) (*storages.Receipt, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, invalid("reason", ErrMissingReason)
	}

	current, err := s.getReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != storages.ReceiptStatusSubmitted && current.Status != storages.ReceiptStatusUnderReview {
		return nil, fmt.Errorf("receipt %s is %s: %w", id, current.Status, ErrReceiptState)
	}

	rejected, err := s.transitionReceipt(ctx, id, current.Status, storages.ReceiptStatusRejected, reviewer, reason)
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Receipt %s rejected by %s: %s", id, reviewer, reason)
	s.publishReceipt(ctx, rejected, nil)
	return rejected, nil
}

// ListReceipts квитанции по статусу для операторов. Пустой статус это все.
func (s *LendingService) ListReceipts(ctx context.Context, status string, limit int) ([]storages.Receipt, error) {
	receipts, err := s.storage.ListReceipts(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	return receipts, nil
}

func (s *LendingService) getReceipt(ctx context.Context, id string) (*storages.Receipt, error) {
	receipt, err := s.storage.GetReceipt(ctx, id)
	if err != nil {
		if errors.Is(err, storages.ErrNotFound) {
			return nil, fmt.Errorf("receipt %s: %w", id, ErrReceiptNotFound)
		}
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return receipt, nil
}

func (s *LendingService) transitionReceipt(ctx context.Context, id, from, to, reviewer, reason string) (*storages.Receipt, error) {
	receipt, err := s.storage.UpdateReceiptStatus(ctx, id, from, to, reviewer, reason)
	switch {
	case err == nil:
		return receipt, nil
	case errors.Is(err, storages.ErrNotFound):
		return nil, fmt.Errorf("receipt %s: %w", id, ErrReceiptNotFound)
	case errors.Is(err, storages.ErrConflict):
		return nil, fmt.Errorf("receipt %s: %s -> %s: %w", id, from, to, ErrReceiptState)
	default:
		return nil, fmt.Errorf("failed to update receipt: %w", err)
	}
}

// publishReceipt событие смены статуса квитанции
func (s *LendingService) publishReceipt(ctx context.Context, receipt *storages.Receipt, position *storages.BorrowPosition) {
	event := storages.OperationEvent{
		OperationID: receipt.ID,
		Kind:        storages.KindReceipt,
		Owner:       receipt.Owner,
		Amount:      receipt.Amount.String(),
		Phase:       receipt.Status,
		Error:       receipt.RejectReason,
		Timestamp:   time.Now(),
	}
	if position == nil {
		if p, err := s.storage.GetPosition(ctx, receipt.PositionID); err == nil {
			position = p
		}
	}
	if position != nil {
		event.Currency = position.CurrencyCode
		if c, err := s.rates.LookupCode(position.CurrencyCode); err == nil {
			event.CollateralValue = rates.ConvertToCollateral(receipt.Amount, c).String()
		}
	}
	s.publish(ctx, event)
}
