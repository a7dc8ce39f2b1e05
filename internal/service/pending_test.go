package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gw-lending/internal/ledger"
	"gw-lending/internal/operation"
	"gw-lending/internal/storages"
	"gw-lending/internal/storages/memory"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStorage отказывает в AddBorrow заданное число раз
type flakyStorage struct {
	*memory.Storage

	mu       sync.Mutex
	failures int
}

func (f *flakyStorage) AddBorrow(ctx context.Context, owner, asset, currency string, amount decimal.Decimal) (*storages.BorrowPosition, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.New("could not serialize access due to concurrent update")
	}
	f.mu.Unlock()
	return f.Storage.AddBorrow(ctx, owner, asset, currency, amount)
}

func withFlakyStorage(failures int) func(*Deps) {
	return func(d *Deps) {
		d.Storage = &flakyStorage{Storage: d.Storage.(*memory.Storage), failures: failures}
	}
}

func qrBorrow(amount string) BorrowRequest {
	return BorrowRequest{
		Amount:       dec(amount),
		CurrencyCode: "BOB",
		Destination:  Destination{Kind: DestinationQR, QRText: "000201"},
	}
}

func TestConcurrentBorrowsShareCeiling(t *testing.T) {
	e := newTestEnv(t)
	e.ledger.Mint(ownerAddr, usdc("50"))
	e.deposit(t, "50")
	e.ledger.SetDelay(200 * time.Millisecond)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ops  []*operation.Operation[BorrowResult]
		errs []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			op, err := e.svc.Borrow(e.ctx, qrBorrow("300"))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ops = append(ops, op)
		}()
	}
	wg.Wait()

	require.Len(t, ops, 1)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrCeilingExceeded)

	// заем в пути уже входит в долг
	limit, err := e.svc.BorrowLimit(e.ctx, "BOB")
	require.NoError(t, err)
	assert.True(t, limit.Pending.Equal(dec("300")), limit.Pending.String())
	assert.True(t, limit.Outstanding.Equal(dec("300")))
	assert.True(t, limit.Available.IsZero())

	result, err := ops[0].Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Recorded)

	limit, err = e.svc.BorrowLimit(e.ctx, "BOB")
	require.NoError(t, err)
	assert.True(t, limit.Pending.IsZero())
	assert.True(t, limit.Outstanding.Equal(dec("300")))

	currency := [32]byte{'B', 'O', 'B'}
	assert.Equal(t, 0, e.ledger.Debt(ownerAddr, currency).Cmp(ledger.ToUnits(dec("300"), 18)), "only one borrow reached the ledger")
}

func TestFailedBorrowReleasesReservation(t *testing.T) {
	e := newTestEnv(t)
	e.ledger.Mint(ownerAddr, usdc("50"))
	e.deposit(t, "50")
	e.ledger.Revert("borrow")

	op, err := e.svc.Borrow(e.ctx, qrBorrow("300"))
	require.NoError(t, err)
	_, err = op.Wait(context.Background())
	require.Error(t, err)

	limit, err := e.svc.BorrowLimit(e.ctx, "BOB")
	require.NoError(t, err)
	assert.True(t, limit.Pending.IsZero())
	assert.True(t, limit.Available.Equal(dec("300")))
}

func TestUnrecordedBorrowIsReconciled(t *testing.T) {
	e := newTestEnv(t, withFlakyStorage(2))
	e.ledger.Mint(ownerAddr, usdc("50"))
	e.deposit(t, "50")

	op, err := e.svc.Borrow(e.ctx, qrBorrow("100"))
	require.NoError(t, err)
	result, err := op.Wait(context.Background())
	require.NoError(t, err, "confirmed on-chain borrow is not a failure")
	assert.False(t, result.Recorded)
	assert.Nil(t, result.Position)
	assert.Equal(t, operation.Confirmed, op.Phase())
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.UnrecordedBorrows))

	positions, err := e.storage.ListPositions(context.Background(), ownerAddr.Hex())
	require.NoError(t, err)
	assert.Empty(t, positions)

	// долг виден до записи позиции
	limit, err := e.svc.BorrowLimit(e.ctx, "BOB")
	require.NoError(t, err)
	assert.True(t, limit.Outstanding.Equal(dec("100")))
	assert.True(t, limit.Pending.Equal(dec("100")))
	_, err = e.svc.Borrow(e.ctx, qrBorrow("250"))
	assert.ErrorIs(t, err, ErrCeilingExceeded)

	recorded, left := e.svc.ReconcileBorrows(context.Background())
	assert.Equal(t, 0, recorded)
	assert.Equal(t, 1, left)
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.UnrecordedBorrows))

	recorded, left = e.svc.ReconcileBorrows(context.Background())
	assert.Equal(t, 1, recorded)
	assert.Equal(t, 0, left)
	assert.Equal(t, float64(0), testutil.ToFloat64(e.metrics.UnrecordedBorrows))

	positions, err = e.storage.ListPositions(context.Background(), ownerAddr.Hex())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].BorrowedAmount.Equal(dec("100")))

	limit, err = e.svc.BorrowLimit(e.ctx, "BOB")
	require.NoError(t, err)
	assert.True(t, limit.Pending.IsZero())
	assert.True(t, limit.Outstanding.Equal(dec("100")))
}
