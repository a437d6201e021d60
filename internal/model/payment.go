package model

import (
	"time"
)

// PaymentTransaction one row per checkout, shared by all sibling orders.
// Status transitions and the Materialized/StockRestored flags are applied
// through single-row conditional updates so that concurrently delivered
// webhooks cannot both observe pending state and both apply side effects.
type PaymentTransaction struct {
	ID             string     `gorm:"type:varchar(40);primaryKey" json:"id"`
	BuyerID        uint64     `gorm:"type:bigint unsigned;not null;index" json:"buyer_id"`
	TempOrderID    string     `gorm:"type:varchar(40);not null;index" json:"temp_order_id"`
	Amount         int64      `gorm:"type:bigint;not null" json:"amount"` // cents
	Status         string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	GatewayOrderID string     `gorm:"type:varchar(64);index" json:"gateway_order_id,omitempty"`
	Materialized   bool       `gorm:"not null;default:false" json:"materialized"`
	StockRestored  bool       `gorm:"not null;default:false" json:"stock_restored"`
	SettledAt      *time.Time `gorm:"type:timestamp" json:"settled_at,omitempty"`
	CreatedAt      time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// PaymentTransactionStatus transaction status const
const (
	TransactionStatusPending   = "pending"
	TransactionStatusPaid      = "paid"
	TransactionStatusFailed    = "failed"
	TransactionStatusCancelled = "cancelled"
)

// IsSettled reports whether the gateway already confirmed capture or failure
func (t *PaymentTransaction) IsSettled() bool {
	return t.Status != TransactionStatusPending
}
