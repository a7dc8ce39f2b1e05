package storages

import (
	"context"
	"errors"

	"gw-lending/internal/rates"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists нарушение уникальности
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict условное обновление не затронуло ни одной строки
	ErrConflict = errors.New("conflicting update")
)

// Storage определяет интерфейс для работы с хранилищем данных
type Storage interface {
	// Reviewer operations
	CreateReviewer(ctx context.Context, reviewer *Reviewer) error
	GetReviewerByUsername(ctx context.Context, username string) (*Reviewer, error)
	GetReviewerByEmail(ctx context.Context, email string) (*Reviewer, error)

	// Position operations
	GetPosition(ctx context.Context, id int64) (*BorrowPosition, error)
	GetActivePosition(ctx context.Context, owner, asset, currency string) (*BorrowPosition, error)
	ListPositions(ctx context.Context, owner string) ([]BorrowPosition, error)

	// AddBorrow увеличивает активную позицию или создает новую
	AddBorrow(ctx context.Context, owner, asset, currency string, amount decimal.Decimal) (*BorrowPosition, error)

	// ApplyRepayment увеличивает total_repaid, только если итог не
	// превысит borrowed_amount. Иначе ErrConflict.
	ApplyRepayment(ctx context.Context, positionID int64, amount decimal.Decimal) (*BorrowPosition, error)

	// Receipt operations
	CreateReceipt(ctx context.Context, receipt *Receipt) error
	GetReceipt(ctx context.Context, id string) (*Receipt, error)
	ListReceipts(ctx context.Context, status string, limit int) ([]Receipt, error)
	ListReceiptsByOwner(ctx context.Context, owner string, positionID int64) ([]Receipt, error)

	// UpdateReceiptStatus меняет статус, только если текущий равен from
	UpdateReceiptStatus(ctx context.Context, id, from, to, reviewer, reason string) (*Receipt, error)

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// CurrencyStorage источник таблицы курсов для gw-rates
type CurrencyStorage interface {
	ListCurrencies(ctx context.Context) ([]rates.Currency, error)
	GetCurrency(ctx context.Context, code string) (*rates.Currency, error)
	Ping(ctx context.Context) error
	Close() error
}

// Journal журнал событий операций
type Journal interface {
	// SaveEventBatch сохраняет пакет событий
	SaveEventBatch(ctx context.Context, events []OperationEvent) error

	// GetEventsByOwner последние события владельца
	GetEventsByOwner(ctx context.Context, owner string, limit int) ([]OperationEvent, error)

	// GetRecentEvents последние события
	GetRecentEvents(ctx context.Context, limit int) ([]OperationEvent, error)

	// GetStatistics агрегаты по журналу
	GetStatistics(ctx context.Context) (*JournalStatistics, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
