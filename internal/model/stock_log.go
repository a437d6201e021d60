package model

import (
	"time"
)

// StockLog audit row for every reserve/restore on the stock ledger
type StockLog struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID     uint64    `gorm:"type:bigint unsigned;not null;index" json:"product_id"`
	OperationType int8      `gorm:"type:tinyint;not null" json:"operation_type"`
	Quantity      int       `gorm:"type:int;not null" json:"quantity"`
	TransactionID *string   `gorm:"type:varchar(40);index" json:"transaction_id,omitempty"`
	Remark        *string   `gorm:"type:varchar(255)" json:"remark,omitempty"`
	CreatedAt     time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName set name
func (StockLog) TableName() string {
	return "stock_logs"
}

// OperationType operation type const
const (
	OperationTypeReserve = 1
	OperationTypeRestore = 2
)
