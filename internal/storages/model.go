package storages

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reviewer оператор, проверяющий квитанции об оплате
type Reviewer struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// BorrowPosition долг владельца в локальной валюте
type BorrowPosition struct {
	ID              int64           `db:"id" json:"id"`
	Owner           string          `db:"owner" json:"owner"`
	CollateralAsset string          `db:"collateral_asset" json:"collateral_asset"`
	CurrencyCode    string          `db:"currency_code" json:"currency_code"`
	BorrowedAmount  decimal.Decimal `db:"borrowed_amount" json:"borrowed_amount"`
	TotalRepaid     decimal.Decimal `db:"total_repaid" json:"total_repaid"`
	Status          string          `db:"status" json:"status"` // active, repaid, defaulted
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Remaining оставшийся долг
func (p *BorrowPosition) Remaining() decimal.Decimal {
	return p.BorrowedAmount.Sub(p.TotalRepaid)
}

// PositionStatus статусы позиции
const (
	PositionStatusActive    = "active"
	PositionStatusRepaid    = "repaid"
	PositionStatusDefaulted = "defaulted"
)

// Receipt квитанция об оплате вне сети
type Receipt struct {
	ID           string          `db:"id" json:"id"`
	PositionID   int64           `db:"position_id" json:"position_id"`
	Owner        string          `db:"owner" json:"owner"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	ImageRef     string          `db:"image_ref" json:"image_ref"`
	Status       string          `db:"status" json:"status"`
	Reviewer     string          `db:"reviewer" json:"reviewer,omitempty"`
	RejectReason string          `db:"reject_reason" json:"reject_reason,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// ReceiptStatus статусы квитанции
const (
	ReceiptStatusSubmitted   = "submitted"
	ReceiptStatusUnderReview = "under_review"
	ReceiptStatusVerified    = "verified"
	ReceiptStatusRejected    = "rejected"
)

// OperationEvent запись о завершенной операции или смене статуса
// квитанции. Уходит в Kafka и сохраняется в журнал MongoDB.
type OperationEvent struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	OperationID     string             `bson:"operation_id" json:"operation_id"`
	Kind            string             `bson:"kind" json:"kind"` // approve, supply, deposit, borrow, repay, receipt
	Owner           string             `bson:"owner" json:"owner"`
	Currency        string             `bson:"currency,omitempty" json:"currency,omitempty"`
	Amount          string             `bson:"amount" json:"amount"`
	CollateralValue string             `bson:"collateral_value" json:"collateral_value"` // в единицах залога
	Phase           string             `bson:"phase" json:"phase"`
	TxHash          string             `bson:"tx_hash,omitempty" json:"tx_hash,omitempty"`
	Error           string             `bson:"error,omitempty" json:"error,omitempty"`
	Large           bool               `bson:"large" json:"large"`
	Timestamp       time.Time          `bson:"timestamp" json:"timestamp"`
	JournaledAt     time.Time          `bson:"journaled_at" json:"journaled_at,omitempty"`
}

// OperationKind типы операций
const (
	KindApprove = "approve"
	KindSupply  = "supply"
	KindDeposit = "deposit"
	KindBorrow  = "borrow"
	KindRepay   = "repay"
	KindReceipt = "receipt"
)

// JournalStatistics агрегаты по журналу
type JournalStatistics struct {
	TotalEvents     int64            `bson:"total_events" json:"total_events"`
	TotalFailed     int64            `bson:"total_failed" json:"total_failed"`
	TotalLarge      int64            `bson:"total_large" json:"total_large"`
	ByKind          map[string]int64 `json:"by_kind"`
	LastJournaledAt time.Time        `bson:"last_journaled_at" json:"last_journaled_at"`
}
