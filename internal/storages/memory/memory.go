// Package memory хранилище позиций, квитанций и операторов в памяти
// процесса. Используется при STORAGE_DRIVER=memory и в тестах.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gw-lending/internal/storages"

	"github.com/shopspring/decimal"
)

// Storage реализует storages.Storage
type Storage struct {
	mu sync.Mutex

	nextReviewerID int64
	nextPositionID int64

	reviewers map[int64]storages.Reviewer
	positions map[int64]storages.BorrowPosition
	receipts  map[string]storages.Receipt
}

// New создает пустое хранилище
func New() *Storage {
	return &Storage{
		reviewers: make(map[int64]storages.Reviewer),
		positions: make(map[int64]storages.BorrowPosition),
		receipts:  make(map[string]storages.Receipt),
	}
}

func (s *Storage) CreateReviewer(_ context.Context, reviewer *storages.Reviewer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.reviewers {
		if r.Username == reviewer.Username || r.Email == reviewer.Email {
			return fmt.Errorf("reviewer %s: %w", reviewer.Username, storages.ErrAlreadyExists)
		}
	}

	s.nextReviewerID++
	now := time.Now()
	reviewer.ID = s.nextReviewerID
	reviewer.CreatedAt = now
	reviewer.UpdatedAt = now
	s.reviewers[reviewer.ID] = *reviewer
	return nil
}

func (s *Storage) GetReviewerByUsername(_ context.Context, username string) (*storages.Reviewer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.reviewers {
		if r.Username == username {
			r := r
			return &r, nil
		}
	}
	return nil, fmt.Errorf("reviewer %s: %w", username, storages.ErrNotFound)
}

func (s *Storage) GetReviewerByEmail(_ context.Context, email string) (*storages.Reviewer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.reviewers {
		if r.Email == email {
			r := r
			return &r, nil
		}
	}
	return nil, fmt.Errorf("reviewer %s: %w", email, storages.ErrNotFound)
}

func (s *Storage) GetPosition(_ context.Context, id int64) (*storages.BorrowPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %d: %w", id, storages.ErrNotFound)
	}
	return &p, nil
}

func (s *Storage) GetActivePosition(_ context.Context, owner, asset, currency string) (*storages.BorrowPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.findActive(owner, asset, currency); ok {
		return &p, nil
	}
	return nil, fmt.Errorf("active position for %s/%s: %w", owner, currency, storages.ErrNotFound)
}

func (s *Storage) findActive(owner, asset, currency string) (storages.BorrowPosition, bool) {
	for _, p := range s.positions {
		if strings.EqualFold(p.Owner, owner) && strings.EqualFold(p.CollateralAsset, asset) &&
			p.CurrencyCode == currency && p.Status == storages.PositionStatusActive {
			return p, true
		}
	}
	return storages.BorrowPosition{}, false
}

func (s *Storage) ListPositions(_ context.Context, owner string) ([]storages.BorrowPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storages.BorrowPosition
	for _, p := range s.positions {
		if strings.EqualFold(p.Owner, owner) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Storage) AddBorrow(_ context.Context, owner, asset, currency string, amount decimal.Decimal) (*storages.BorrowPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if p, ok := s.findActive(owner, asset, currency); ok {
		p.BorrowedAmount = p.BorrowedAmount.Add(amount)
		p.UpdatedAt = now
		s.positions[p.ID] = p
		return &p, nil
	}

	s.nextPositionID++
	p := storages.BorrowPosition{
		ID:              s.nextPositionID,
		Owner:           owner,
		CollateralAsset: asset,
		CurrencyCode:    currency,
		BorrowedAmount:  amount,
		TotalRepaid:     decimal.Zero,
		Status:          storages.PositionStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.positions[p.ID] = p
	return &p, nil
}

func (s *Storage) ApplyRepayment(_ context.Context, positionID int64, amount decimal.Decimal) (*storages.BorrowPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("position %d: %w", positionID, storages.ErrNotFound)
	}

	repaid := p.TotalRepaid.Add(amount)
	if p.Status != storages.PositionStatusActive || repaid.GreaterThan(p.BorrowedAmount) {
		return nil, fmt.Errorf("position %d: %w", positionID, storages.ErrConflict)
	}

	p.TotalRepaid = repaid
	if repaid.Equal(p.BorrowedAmount) {
		p.Status = storages.PositionStatusRepaid
	}
	p.UpdatedAt = time.Now()
	s.positions[positionID] = p
	return &p, nil
}

func (s *Storage) CreateReceipt(_ context.Context, receipt *storages.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.receipts[receipt.ID]; ok {
		return fmt.Errorf("receipt %s: %w", receipt.ID, storages.ErrAlreadyExists)
	}
	now := time.Now()
	receipt.CreatedAt = now
	receipt.UpdatedAt = now
	s.receipts[receipt.ID] = *receipt
	return nil
}

func (s *Storage) GetReceipt(_ context.Context, id string) (*storages.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.receipts[id]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", id, storages.ErrNotFound)
	}
	return &r, nil
}

func (s *Storage) ListReceipts(_ context.Context, status string, limit int) ([]storages.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storages.Receipt
	for _, r := range s.receipts {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Storage) ListReceiptsByOwner(_ context.Context, owner string, positionID int64) ([]storages.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storages.Receipt
	for _, r := range s.receipts {
		if r.Owner == owner && (positionID == 0 || r.PositionID == positionID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Storage) UpdateReceiptStatus(_ context.Context, id, from, to, reviewer, reason string) (*storages.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.receipts[id]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", id, storages.ErrNotFound)
	}
	if r.Status != from {
		return nil, fmt.Errorf("receipt %s is %s: %w", id, r.Status, storages.ErrConflict)
	}

	r.Status = to
	if reviewer != "" {
		r.Reviewer = reviewer
	}
	r.RejectReason = reason
	r.UpdatedAt = time.Now()
	s.receipts[id] = r
	return &r, nil
}

func (s *Storage) Ping(context.Context) error { return nil }

func (s *Storage) Close() error { return nil }
