package model

import (
	"time"
)

// Order one order per seller per checkout. Sibling orders share a
// PaymentTransactionID and settle their payment status together; the
// fulfillment Status evolves independently per seller.
type Order struct {
	ID                   uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo              string     `gorm:"type:varchar(40);uniqueIndex;not null" json:"order_no"`
	BuyerID              uint64     `gorm:"type:bigint unsigned;not null;index" json:"buyer_id"`
	SellerID             uint64     `gorm:"type:bigint unsigned;not null;index" json:"seller_id"`
	TotalPrice           int64      `gorm:"type:bigint;not null" json:"total_price"` // cents
	Status               string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentStatus        string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"payment_status"`
	PaymentTransactionID string     `gorm:"type:varchar(40);not null;index" json:"payment_transaction_id"`
	GatewayOrderID       string     `gorm:"type:varchar(64)" json:"gateway_order_id,omitempty"`
	GatewayPaymentID     string     `gorm:"type:varchar(64)" json:"gateway_payment_id,omitempty"`
	ShippingAddress      string     `gorm:"type:varchar(500);not null" json:"shipping_address"`
	ShipmentID           *string    `gorm:"type:varchar(64)" json:"shipment_id,omitempty"`
	AWBCode              *string    `gorm:"type:varchar(64)" json:"awb_code,omitempty"`
	PaidAt               *time.Time `gorm:"type:timestamp" json:"paid_at,omitempty"`
	CancelledAt          *time.Time `gorm:"type:timestamp" json:"cancelled_at,omitempty"`
	CreatedAt            time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

// TableName set name
func (Order) TableName() string {
	return "orders"
}

// OrderItem one cart line scoped to its seller order
type OrderItem struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   uint64    `gorm:"type:bigint unsigned;not null;index" json:"order_id"`
	ProductID uint64    `gorm:"type:bigint unsigned;not null;index" json:"product_id"`
	Quantity  int       `gorm:"type:int;not null" json:"quantity"`
	UnitPrice int64     `gorm:"type:bigint;not null" json:"unit_price"` // cents
	LineTotal int64     `gorm:"type:bigint;not null" json:"line_total"` // cents
	CreatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName set name
func (OrderItem) TableName() string {
	return "order_items"
}

// OrderStatus fulfillment status const
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// PaymentStatus payment status const
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// orderTransitions legal fulfillment transitions. Delivered and Cancelled
// are terminal.
var orderTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// CanTransitionTo reports whether the fulfillment status may move to next
func (o *Order) CanTransitionTo(next string) bool {
	for _, allowed := range orderTransitions[o.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the fulfillment status is terminal
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusCancelled
}

// IsPaymentPending check payment not yet settled
func (o *Order) IsPaymentPending() bool {
	return o.PaymentStatus == PaymentStatusPending
}

// GetTotalPriceUnits get total price in currency units
func (o *Order) GetTotalPriceUnits() float64 {
	return float64(o.TotalPrice) / 100
}
