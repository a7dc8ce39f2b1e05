package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"gw-lending/internal/storages"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// pendingBorrow заем, отправленный в сеть, но еще не записанный в позицию.
// Пока запись существует, сумма входит в долг владельца.
type pendingBorrow struct {
	operationID string
	owner       common.Address
	currency    string
	amount      decimal.Decimal
	txHash      common.Hash
	confirmed   bool
	createdAt   time.Time
}

type pendingBorrows struct {
	mu    sync.Mutex
	items map[string]pendingBorrow
}

func newPendingBorrows() *pendingBorrows {
	return &pendingBorrows{items: make(map[string]pendingBorrow)}
}

func (p *pendingBorrows) add(b pendingBorrow) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b.createdAt = time.Now()
	p.items[b.operationID] = b
}

func (p *pendingBorrows) remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, id)
}

// confirm отмечает, что транзакция подтверждена, а позиция не записана
func (p *pendingBorrows) confirm(id string, hash common.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.items[id]; ok {
		b.txHash = hash
		b.confirmed = true
		p.items[id] = b
	}
}

func (p *pendingBorrows) byOwner(owner common.Address) []pendingBorrow {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []pendingBorrow
	for _, b := range p.items {
		if b.owner == owner {
			out = append(out, b)
		}
	}
	return out
}

func (p *pendingBorrows) unrecorded() []pendingBorrow {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []pendingBorrow
	for _, b := range p.items {
		if b.confirmed {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].createdAt.Before(out[j].createdAt) })
	return out
}

// recordBorrow записывает подтвержденный заем в позицию и снимает резерв
func (s *LendingService) recordBorrow(ctx context.Context, b pendingBorrow) (*storages.BorrowPosition, error) {
	position, err := s.storage.AddBorrow(ctx, b.owner.Hex(), s.collateral.Symbol, b.currency, b.amount)
	if err != nil {
		return nil, err
	}
	s.pending.remove(b.operationID)
	return position, nil
}

// ReconcileBorrows повторяет запись подтвержденных заемов, которые не
// удалось сохранить сразу. Возвращает число записанных и оставшихся.
func (s *LendingService) ReconcileBorrows(ctx context.Context) (recorded, left int) {
	for _, b := range s.pending.unrecorded() {
		position, err := s.recordBorrow(ctx, b)
		if err != nil {
			s.logger.Warnf("Borrow %s (%s) still not recorded for %s: %v",
				b.operationID, b.txHash.Hex(), b.owner.Hex(), err)
			left++
			continue
		}
		recorded++
		s.logger.Infof("Borrow %s reconciled into position %d", b.operationID, position.ID)
	}
	s.metrics.UnrecordedBorrows.Set(float64(left))
	return recorded, left
}
