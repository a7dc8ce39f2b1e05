package memory

import (
	"context"
	"testing"

	"gw-lending/internal/storages"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "0x00000000000000000000000000000000000A11CE"

func TestAddBorrowGrowsActivePosition(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.AddBorrow(ctx, owner, "USDC", "BOB", decimal.NewFromInt(100))
	require.NoError(t, err)

	second, err := s.AddBorrow(ctx, owner, "USDC", "BOB", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.BorrowedAmount.Equal(decimal.NewFromInt(150)))

	other, err := s.AddBorrow(ctx, owner, "USDC", "ARS", decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	// адрес сравнивается без учета регистра
	active, err := s.GetActivePosition(ctx, "0x00000000000000000000000000000000000a11ce", "USDC", "BOB")
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	positions, err := s.ListPositions(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, positions, 2)
}

func TestApplyRepayment(t *testing.T) {
	ctx := context.Background()
	s := New()

	p, err := s.AddBorrow(ctx, owner, "USDC", "BOB", decimal.NewFromInt(300))
	require.NoError(t, err)

	_, err = s.ApplyRepayment(ctx, p.ID, decimal.NewFromInt(301))
	assert.ErrorIs(t, err, storages.ErrConflict)

	updated, err := s.ApplyRepayment(ctx, p.ID, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, updated.Remaining().Equal(decimal.NewFromInt(200)))
	assert.Equal(t, storages.PositionStatusActive, updated.Status)

	updated, err = s.ApplyRepayment(ctx, p.ID, decimal.NewFromInt(200))
	require.NoError(t, err)
	assert.True(t, updated.Remaining().IsZero())
	assert.Equal(t, storages.PositionStatusRepaid, updated.Status)

	_, err = s.ApplyRepayment(ctx, p.ID, decimal.RequireFromString("0.01"))
	assert.ErrorIs(t, err, storages.ErrConflict)

	_, err = s.ApplyRepayment(ctx, 999, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, storages.ErrNotFound)

	// погашенная позиция не растет, новый заем открывает новую
	next, err := s.AddBorrow(ctx, owner, "USDC", "BOB", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, next.ID)
}

func TestReceiptTransitions(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := &storages.Receipt{ID: "r-1", PositionID: 1, Owner: owner, Amount: decimal.NewFromInt(5), Status: storages.ReceiptStatusSubmitted}
	require.NoError(t, s.CreateReceipt(ctx, r))
	assert.ErrorIs(t, s.CreateReceipt(ctx, r), storages.ErrAlreadyExists)

	_, err := s.UpdateReceiptStatus(ctx, "r-1", storages.ReceiptStatusUnderReview, storages.ReceiptStatusVerified, "alice", "")
	assert.ErrorIs(t, err, storages.ErrConflict)

	updated, err := s.UpdateReceiptStatus(ctx, "r-1", storages.ReceiptStatusSubmitted, storages.ReceiptStatusUnderReview, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", updated.Reviewer)

	list, err := s.ListReceipts(ctx, storages.ReceiptStatusUnderReview, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = s.ListReceipts(ctx, storages.ReceiptStatusSubmitted, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.GetReceipt(ctx, "missing")
	assert.ErrorIs(t, err, storages.ErrNotFound)
}

func TestReviewerUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateReviewer(ctx, &storages.Reviewer{Username: "alice", Email: "a@example.com"}))
	err := s.CreateReviewer(ctx, &storages.Reviewer{Username: "alice", Email: "b@example.com"})
	assert.ErrorIs(t, err, storages.ErrAlreadyExists)

	r, err := s.GetReviewerByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.ID)

	_, err = s.GetReviewerByUsername(ctx, "bob")
	assert.ErrorIs(t, err, storages.ErrNotFound)
}
