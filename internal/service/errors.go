package service

import (
	"errors"
	"fmt"

	"gw-lending/internal/ledger"
	"gw-lending/pkg"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Причины ValidationError
var (
	ErrInvalidAmount     = pkg.ErrNonPositiveAmount
	ErrPrecision         = errors.New("amount has too many fractional digits")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCeilingExceeded   = errors.New("amount exceeds borrow limit")
	ErrDestination       = errors.New("destination is incomplete")
	ErrUnsupportedAsset  = errors.New("asset is not accepted as collateral")
	ErrMissingEvidence   = errors.New("receipt image is required")
	ErrMissingReason     = errors.New("reject reason is required")
)

var (
	// ErrPositionNotFound позиция не найдена или принадлежит другому владельцу
	ErrPositionNotFound = errors.New("borrow position not found")
	// ErrReceiptNotFound квитанция не найдена
	ErrReceiptNotFound = errors.New("receipt not found")
	// ErrReceiptState квитанция не в том статусе для перехода
	ErrReceiptState = errors.New("receipt is not in the required state")
	// ErrBalanceUnavailable баланс залога прочитать не удалось
	ErrBalanceUnavailable = errors.New("collateral balance unavailable")
	// ErrInvalidCredentials неверные имя или пароль оператора
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrReviewerExists имя или email оператора заняты
	ErrReviewerExists = errors.New("reviewer already exists")
	// ErrBusy по позиции или кошельку уже идет операция
	ErrBusy = errors.New("another operation is in progress")
)

// ValidationError неверный ввод. Операция не отправляется.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// AllowanceError разрешения spender недостаточно для перевода
type AllowanceError struct {
	Owner    common.Address
	Spender  common.Address
	Required decimal.Decimal
	Allowed  decimal.Decimal
	Err      error // ошибка чтения, если разрешение неизвестно
}

func (e *AllowanceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("allowance for %s unknown: %v", e.Spender.Hex(), e.Err)
	}
	return fmt.Sprintf("allowance for %s is %s, need %s",
		e.Spender.Hex(), e.Allowed.String(), e.Required.String())
}

func (e *AllowanceError) Unwrap() error { return e.Err }

// TxErrorKind причина неудачи транзакции
type TxErrorKind string

const (
	TxRejected TxErrorKind = "rejected"
	TxReverted TxErrorKind = "reverted"
	TxTimeout  TxErrorKind = "timeout"
	TxNetwork  TxErrorKind = "network"
)

// TransactionError транзакция не прошла
type TransactionError struct {
	Op   string
	Kind TxErrorKind
	Err  error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s transaction %s: %v", e.Op, e.Kind, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// txError оборачивает ошибку ledger. Уже обернутые возвращаются как есть.
func txError(op string, err error) error {
	var te *TransactionError
	if errors.As(err, &te) {
		return err
	}

	kind := TxNetwork
	switch {
	case errors.Is(err, ledger.ErrRejected):
		kind = TxRejected
	case errors.Is(err, ledger.ErrReverted):
		kind = TxReverted
	case errors.Is(err, ledger.ErrTimeout):
		kind = TxTimeout
	}
	return &TransactionError{Op: op, Kind: kind, Err: err}
}

// OverpaymentError сумма погашения больше остатка долга
type OverpaymentError struct {
	PositionID int64
	Amount     decimal.Decimal
	Remaining  decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("repayment %s exceeds remaining debt %s on position %d",
		e.Amount.StringFixed(2), e.Remaining.StringFixed(2), e.PositionID)
}
