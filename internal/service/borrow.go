package service

import (
	"context"
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

// LoanToValue доля стоимости залога, доступная в заем
var LoanToValue = decimal.New(5, -1)

// FiatScale знаков после запятой у сумм в локальной валюте
const FiatScale = 2

// BolivianBanks банки для выбора получателя
var BolivianBanks = []string{
	"Mercantile Bank Santa Cruz",
	"Cattle Bank",
	"National Bank of Bolivia",
	"Bisa Bank",
	"Sol Bank",
	"Union Bank",
	"Economic Bank",
	"Fassil Bank",
	"Fortress Bank",
	"FIE Bank",
	"SME Bank",
	"Credit Bank of Bolivia",
}

// ComputeMaxBorrow потолок заема в локальной валюте. Без залога 0.
func ComputeMaxBorrow(collateral decimal.Decimal, c rates.Currency) decimal.Decimal {
	if !collateral.IsPositive() {
		return decimal.Zero
	}
	return rates.ConvertToLocal(collateral, c).Mul(LoanToValue)
}

// DestinationKind способ получения средств
type DestinationKind string

const (
	DestinationBank DestinationKind = "bank"
	DestinationQR   DestinationKind = "qr"
)

// Destination куда перечислить заем
type Destination struct {
	Kind          DestinationKind `json:"kind" binding:"required"`
	BankName      string          `json:"bank_name,omitempty"`
	AccountNumber string          `json:"account_number,omitempty"`
	QRImageRef    string          `json:"qr_image_ref,omitempty"`
	QRText        string          `json:"qr_text,omitempty"`
}

// Validate банк: имя и счет непустые. QR: изображение или текст.
func (d Destination) Validate() error {
	switch d.Kind {
	case DestinationBank:
		if strings.TrimSpace(d.BankName) == "" || strings.TrimSpace(d.AccountNumber) == "" {
			return invalid("destination", ErrDestination)
		}
	case DestinationQR:
		if strings.TrimSpace(d.QRImageRef) == "" && strings.TrimSpace(d.QRText) == "" {
			return invalid("destination", ErrDestination)
		}
	default:
		return invalid("destination", fmt.Errorf("%w: unknown kind %q", ErrDestination, d.Kind))
	}
	return nil
}

// BorrowRequest запрос на заем
type BorrowRequest struct {
	Amount       decimal.Decimal
	CurrencyCode string
	Destination  Destination
}

// BorrowLimit сколько еще можно занять в валюте
type BorrowLimit struct {
	Currency    rates.Currency  `json:"currency"`
	Collateral  BalanceView     `json:"collateral"`
	Ceiling     decimal.Decimal `json:"ceiling"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Pending     decimal.Decimal `json:"pending"` // заемы в пути, входят в Outstanding
	Available   decimal.Decimal `json:"available"`
}

// BorrowResult результат подтвержденного заема. Recorded false, если
// позицию записать не удалось: ее допишет ReconcileBorrows.
type BorrowResult struct {
	Receipt     ledger.Receipt           `json:"receipt"`
	Position    *storages.BorrowPosition `json:"position,omitempty"`
	Recorded    bool                     `json:"recorded"`
	Destination Destination              `json:"destination"`
}

func (s *LendingService) lookupCurrency(code string) (rates.Currency, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return s.rates.Default(), nil
	}
	// код в виде bytes32 из событий контракта
	if strings.HasPrefix(code, "0x") {
		decoded, err := codec.DecodeCurrencyHex(code)
		if err != nil {
			return rates.Currency{}, invalid("currency", err)
		}
		code = decoded
	}
	c, err := s.rates.LookupCode(code)
	if err != nil {
		return rates.Currency{}, invalid("currency", err)
	}
	return c, nil
}

// inCurrency переводит сумму из валюты code в валюту c через единицы залога
func (s *LendingService) inCurrency(amount decimal.Decimal, code string, c rates.Currency) (decimal.Decimal, error) {
	if strings.EqualFold(code, c.Code) {
		return amount, nil
	}
	other, err := s.rates.LookupCode(code)
	if err != nil {
		return decimal.Zero, err
	}
	return rates.ConvertToLocal(rates.ConvertToCollateral(amount, other), c), nil
}

// outstanding долг владельца в валюте c: остатки активных позиций и
// заемы, еще не записанные в позиции.
func (s *LendingService) outstanding(ctx context.Context, owner common.Address, c rates.Currency) (recorded, pending decimal.Decimal, err error) {
	positions, err := s.storage.ListPositions(ctx, owner.Hex())
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to list positions: %w", err)
	}

	recorded, pending = decimal.Zero, decimal.Zero
	for _, p := range positions {
		if p.Status != storages.PositionStatusActive || !strings.EqualFold(p.CollateralAsset, s.collateral.Symbol) {
			continue
		}
		amount, err := s.inCurrency(p.Remaining(), p.CurrencyCode, c)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("position %d: %w", p.ID, err)
		}
		recorded = recorded.Add(amount)
	}

	for _, b := range s.pending.byOwner(owner) {
		amount, err := s.inCurrency(b.amount, b.currency, c)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("borrow %s: %w", b.operationID, err)
		}
		pending = pending.Add(amount)
	}
	return recorded, pending, nil
}

// BorrowLimit потолок, текущий долг и доступный остаток для подключенного
// кошелька. Потолок считается от баланса залога.
func (s *LendingService) BorrowLimit(ctx context.Context, currencyCode string) (BorrowLimit, error) {
	owner, err := s.identity.Owner(ctx)
	if err != nil {
		return BorrowLimit{}, err
	}
	return s.borrowLimit(ctx, owner, currencyCode)
}

func (s *LendingService) borrowLimit(ctx context.Context, owner common.Address, currencyCode string) (BorrowLimit, error) {
	c, err := s.lookupCurrency(currencyCode)
	if err != nil {
		return BorrowLimit{}, err
	}

	balance, err := s.CollateralBalance(ctx, owner)
	if err != nil {
		return BorrowLimit{}, err
	}

	recorded, pending, err := s.outstanding(ctx, owner, c)
	if err != nil {
		return BorrowLimit{}, err
	}
	debt := recorded.Add(pending)

	ceiling := ComputeMaxBorrow(balance.Amount, c)
	available := ceiling.Sub(debt)
	if available.IsNegative() {
		available = decimal.Zero
	}

	return BorrowLimit{
		Currency:    c,
		Collateral:  balance,
		Ceiling:     ceiling,
		Outstanding: debt,
		Pending:     pending,
		Available:   available,
	}, nil
}

// Borrow проверяет запрос и отправляет borrow(token, amount, currency).
// После подтверждения позиция в хранилище создается или растет.
func (s *LendingService) Borrow(ctx context.Context, req BorrowRequest) (*operation.Operation[BorrowResult], error) {
	owner, err := s.identity.Owner(ctx)
	if err != nil {
		return nil, err
	}

	c, err := s.lookupCurrency(req.CurrencyCode)
	if err != nil {
		return nil, err
	}
	if err := validateAmount(req.Amount, FiatScale); err != nil {
		return nil, err
	}
	if err := req.Destination.Validate(); err != nil {
		return nil, err
	}

	currency, err := codec.EncodeCurrency(c.Code)
	if err != nil {
		return nil, invalid("currency", err)
	}

	// проверка потолка и резерв суммы под одной блокировкой владельца,
	// чтобы параллельный заем видел этот как долг
	if err := s.ownerLocks.acquire(ctx, owner); err != nil {
		return nil, err
	}
	defer s.ownerLocks.release(owner)

	limit, err := s.borrowLimit(ctx, owner, c.Code)
	if err != nil {
		return nil, err
	}
	if limit.Collateral.Stale {
		return nil, fmt.Errorf("%w: %w", ErrBalanceUnavailable, limit.Collateral.Err)
	}
	if req.Amount.GreaterThan(limit.Available) {
		return nil, invalid("amount", fmt.Errorf("%w: available %s %s",
			ErrCeilingExceeded, limit.Available.Truncate(FiatScale).StringFixed(FiatScale), c.Code))
	}

	op := operation.New[BorrowResult](storages.KindBorrow, owner.Hex())
	reservation := pendingBorrow{operationID: op.ID(), owner: owner, currency: c.Code, amount: req.Amount}
	s.pending.add(reservation)

	track(s, op, eventInfo{
		kind:     storages.KindBorrow,
		owner:    owner,
		currency: c.Code,
		amount:   req.Amount,
		value:    rates.ConvertToCollateral(req.Amount, c),
	}, func(r BorrowResult) common.Hash { return r.Receipt.TxHash })

	if err := op.Start(ctx, func(ctx context.Context) (BorrowResult, error) {
		handle, err := s.torito.Borrow(ctx, owner, s.collateral.Address, ledger.ToUnits(req.Amount, ledger.FiatDecimals), currency)
		if err != nil {
			s.pending.remove(op.ID())
			return BorrowResult{}, txError(storages.KindBorrow, err)
		}
		receipt, err := handle.Wait(ctx)
		if err != nil {
			s.pending.remove(op.ID())
			return BorrowResult{}, txError(storages.KindBorrow, err)
		}

		result := BorrowResult{Receipt: receipt, Destination: req.Destination}
		position, err := s.recordBorrow(ctx, reservation)
		if err != nil {
			// заем уже в сети: операция успешна, резерв остается в долге
			s.pending.confirm(op.ID(), receipt.TxHash)
			s.metrics.UnrecordedBorrows.Inc()
			s.logger.Errorf("Borrow %s confirmed but position not recorded for %s, queued for reconciliation: %v",
				receipt.TxHash.Hex(), owner.Hex(), err)
			return result, nil
		}

		result.Position = position
		result.Recorded = true
		return result, nil
	}); err != nil {
		s.pending.remove(op.ID())
		return nil, err
	}
	return op, nil
}
