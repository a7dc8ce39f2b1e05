package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gw-lending/internal/assets"
	"gw-lending/internal/cache"
	"gw-lending/internal/identity"
	"gw-lending/internal/ledger"
	"gw-lending/internal/metrics"
	"gw-lending/internal/operation"
	"gw-lending/internal/rates"
	"gw-lending/internal/storages"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// EventPublisher отправляет события операций во внешнюю шину
type EventPublisher interface {
	PublishOperationEvent(ctx context.Context, event storages.OperationEvent) error
}

// Deps зависимости сервиса
type Deps struct {
	Ledger     ledger.Client
	Contract   common.Address
	Collateral assets.Asset
	Assets     *assets.Registry // nil это assets.DefaultRegistry()
	Rates      *rates.Table
	Identity   identity.Provider
	Storage    storages.Storage
	Balances   *cache.BalanceCache
	Operations *operation.Registry
	Events     EventPublisher
	Metrics    *metrics.Metrics
	Logger     *logrus.Logger

	// LockWait сколько ждать занятую позицию или владельца, 0 это
	// DefaultLockWait
	LockWait time.Duration
}

// DefaultLockWait ожидание блокировки по умолчанию
const DefaultLockWait = 2 * time.Second

// LendingService сервисный слой: баланс, разрешения, залог, заем, погашение
type LendingService struct {
	torito     *ledger.Torito
	token      *ledger.ERC20
	collateral assets.Asset
	assets     *assets.Registry
	rates      *rates.Table
	identity   identity.Provider
	storage    storages.Storage
	balances   *cache.BalanceCache
	operations *operation.Registry
	events     EventPublisher
	metrics    *metrics.Metrics
	logger     *logrus.Logger

	positionLocks *keyedLocks[int64]
	ownerLocks    *keyedLocks[common.Address]
	pending       *pendingBorrows
}

// NewLendingService создает новый экземпляр сервиса
func NewLendingService(d Deps) *LendingService {
	wait := d.LockWait
	if wait <= 0 {
		wait = DefaultLockWait
	}
	registry := d.Assets
	if registry == nil {
		registry = assets.DefaultRegistry()
	}
	return &LendingService{
		torito:     ledger.NewTorito(d.Ledger, d.Contract),
		token:      ledger.NewERC20(d.Ledger, d.Collateral.Address),
		collateral: d.Collateral,
		assets:     registry,
		rates:      d.Rates,
		identity:   d.Identity,
		storage:    d.Storage,
		balances:   d.Balances,
		operations: d.Operations,
		events:     d.Events,
		metrics:    d.Metrics,
		logger:     d.Logger,

		positionLocks: newKeyedLocks[int64](wait),
		ownerLocks:    newKeyedLocks[common.Address](wait),
		pending:       newPendingBorrows(),
	}
}

// Rates таблица курсов
func (s *LendingService) Rates() *rates.Table { return s.rates }

// Collateral залоговый актив
func (s *LendingService) Collateral() assets.Asset { return s.collateral }

// Contract адрес контракта кредитования
func (s *LendingService) Contract() common.Address { return s.torito.Address() }

// Operation возвращает операцию по id, только владельцу
func (s *LendingService) Operation(ctx context.Context, id string) (operation.Snapshot, error) {
	owner, err := s.identity.Owner(ctx)
	if err != nil {
		return operation.Snapshot{}, err
	}

	op, ok := s.operations.Get(id)
	if !ok || op.Owner() != owner.Hex() {
		return operation.Snapshot{}, fmt.Errorf("operation %s: %w", id, storages.ErrNotFound)
	}
	return op.Snapshot(), nil
}

// Operations операции текущего владельца, пока они хранятся в реестре
func (s *LendingService) Operations(ctx context.Context) ([]operation.Snapshot, error) {
	owner, err := s.identity.Owner(ctx)
	if err != nil {
		return nil, err
	}
	return s.operations.ListByOwner(owner.Hex()), nil
}

// resolveAsset проверяет, что актив совпадает с залоговым. Актив можно
// указать символом или адресом токена.
func (s *LendingService) resolveAsset(asset string) error {
	if asset == "" || strings.EqualFold(asset, s.collateral.Symbol) {
		return nil
	}
	if common.IsHexAddress(asset) {
		a, ok := s.assets.Lookup(common.HexToAddress(asset))
		if ok && a.Address == s.collateral.Address {
			return nil
		}
	}
	return invalid("asset", fmt.Errorf("%s: %w", asset, ErrUnsupportedAsset))
}

// eventInfo описание события для track
type eventInfo struct {
	kind     string
	owner    common.Address
	currency string
	amount   decimal.Decimal
	// value суммы в единицах залога, для порога крупных операций
	value decimal.Decimal
}

// track регистрирует операцию, считает метрики и публикует событие при
// завершении. Вызывать до Start.
func track[T any](s *LendingService, op *operation.Operation[T], info eventInfo, hash func(T) common.Hash) {
	started := time.Now()
	s.operations.Add(op)

	op.OnSettle(func(result T, err error) {
		phase := operation.Confirmed
		if err != nil {
			phase = operation.Failed
		}

		s.metrics.Operations.WithLabelValues(info.kind, phase.String()).Inc()
		s.metrics.OperationDuration.WithLabelValues(info.kind).Observe(time.Since(started).Seconds())

		event := storages.OperationEvent{
			OperationID:     op.ID(),
			Kind:            info.kind,
			Owner:           info.owner.Hex(),
			Currency:        info.currency,
			Amount:          info.amount.String(),
			CollateralValue: info.value.String(),
			Phase:           phase.String(),
			Timestamp:       time.Now(),
		}
		if err != nil {
			event.Error = err.Error()
			s.logger.Warnf("Operation %s %s failed for %s: %v", info.kind, op.ID(), info.owner.Hex(), err)
		} else {
			if hash != nil {
				event.TxHash = hash(result).Hex()
			}
			s.logger.Infof("Operation %s %s confirmed for %s: amount=%s",
				info.kind, op.ID(), info.owner.Hex(), info.amount.String())
		}
		s.publish(context.Background(), event)
	})
}

// publish отправляет событие. Ошибка логируется и считается, но не
// влияет на результат операции.
func (s *LendingService) publish(ctx context.Context, event storages.OperationEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOperationEvent(ctx, event); err != nil {
		s.metrics.PublishFailures.Inc()
		s.logger.Warnf("Failed to publish %s event %s: %v", event.Kind, event.OperationID, err)
	}
}

// keyedLocks сериализует операции по ключу: позиции или владельцу
type keyedLocks[K comparable] struct {
	mu    sync.Mutex
	slots map[K]chan struct{}
	wait  time.Duration
}

func newKeyedLocks[K comparable](wait time.Duration) *keyedLocks[K] {
	return &keyedLocks[K]{slots: make(map[K]chan struct{}), wait: wait}
}

func (l *keyedLocks[K]) slot(key K) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// acquire ждет ключ не дольше wait. По истечении ErrBusy, при отмене ctx
// ошибка контекста.
func (l *keyedLocks[K]) acquire(ctx context.Context, key K) error {
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case l.slot(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%v: %w", key, ErrBusy)
	}
}

func (l *keyedLocks[K]) release(key K) {
	<-l.slot(key)
}
