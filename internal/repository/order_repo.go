package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"marketplace/internal/model"
	"marketplace/pkg/apperr"
)

// OrderRepository order repository interface
type OrderRepository interface {
	// Create all sibling orders of one checkout in a single transaction
	CreateBatch(ctx context.Context, orders []*model.Order) error

	// Get order by ID with items
	GetByID(ctx context.Context, id uint64) (*model.Order, error)

	// List all sibling orders sharing a payment transaction
	ListByTransactionID(ctx context.Context, transactionID string) ([]*model.Order, error)

	// Mark all sibling orders paid; conditional on payment_status still pending.
	// Returns the number of rows transitioned.
	MarkPaid(ctx context.Context, transactionID, gatewayPaymentID string) (int64, error)

	// Mark all sibling orders failed and cancelled; conditional on pending payment
	MarkPaymentFailed(ctx context.Context, transactionID string) (int64, error)

	// Transition one order's fulfillment status; conditional on the current status
	TransitionStatus(ctx context.Context, id uint64, from, to string) (bool, error)

	// Attach carrier shipment identifiers to an order
	SetShipmentInfo(ctx context.Context, id uint64, shipmentID, awbCode string) error

	// List buyer orders
	ListByBuyer(ctx context.Context, buyerID uint64, page, pageSize int) ([]*model.Order, int64, error)

	// List seller orders
	ListBySeller(ctx context.Context, sellerID uint64, page, pageSize int) ([]*model.Order, int64, error)
}

// orderRepository order repository implementation
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates an order repository
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// CreateBatch creates sibling orders and their items in one transaction
func (r *orderRepository) CreateBatch(ctx context.Context, orders []*model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, order := range orders {
			items := order.Items
			order.Items = nil
			if err := tx.Create(order).Error; err != nil {
				return err
			}
			for i := range items {
				items[i].OrderID = order.ID
			}
			if len(items) > 0 {
				if err := tx.Create(&items).Error; err != nil {
					return err
				}
			}
			order.Items = items
		}
		return nil
	})
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// GetByID gets an order by ID
func (r *orderRepository) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order not found").WithDetail("order_id", id)
		}
		return nil, apperr.Database(err)
	}
	return &order, nil
}

// ListByTransactionID lists all sibling orders for a checkout
func (r *orderRepository) ListByTransactionID(ctx context.Context, transactionID string) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("payment_transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, apperr.Database(err)
	}
	return orders, nil
}

// MarkPaid transitions payment_status pending->paid and status->processing on
// every sibling order in one conditional UPDATE. Retried webhooks affect zero
// rows and are therefore harmless.
func (r *orderRepository) MarkPaid(ctx context.Context, transactionID, gatewayPaymentID string) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("payment_transaction_id = ? AND payment_status = ?", transactionID, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"payment_status":     model.PaymentStatusPaid,
			"status":             model.OrderStatusProcessing,
			"gateway_payment_id": gatewayPaymentID,
			"paid_at":            &now,
		})
	if result.Error != nil {
		return 0, apperr.Database(result.Error)
	}
	return result.RowsAffected, nil
}

// MarkPaymentFailed transitions payment_status pending->failed and cancels the
// fulfillment lifecycle on every sibling order
func (r *orderRepository) MarkPaymentFailed(ctx context.Context, transactionID string) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("payment_transaction_id = ? AND payment_status = ?", transactionID, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"payment_status": model.PaymentStatusFailed,
			"status":         model.OrderStatusCancelled,
			"cancelled_at":   &now,
		})
	if result.Error != nil {
		return 0, apperr.Database(result.Error)
	}
	return result.RowsAffected, nil
}

// TransitionStatus moves one order's fulfillment status, conditional on its
// current value. Returns false when the order was not in the expected state.
func (r *orderRepository) TransitionStatus(ctx context.Context, id uint64, from, to string) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if to == model.OrderStatusCancelled {
		now := time.Now()
		updates["cancelled_at"] = &now
	}

	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, apperr.Database(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SetShipmentInfo attaches carrier identifiers
func (r *orderRepository) SetShipmentInfo(ctx context.Context, id uint64, shipmentID, awbCode string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"shipment_id": shipmentID,
			"awb_code":    awbCode,
		})
	if result.Error != nil {
		return apperr.Database(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("order not found").WithDetail("order_id", id)
	}
	return nil
}

// ListByBuyer lists buyer orders
func (r *orderRepository) ListByBuyer(ctx context.Context, buyerID uint64, page, pageSize int) ([]*model.Order, int64, error) {
	return r.list(ctx, "buyer_id", buyerID, page, pageSize)
}

// ListBySeller lists seller orders
func (r *orderRepository) ListBySeller(ctx context.Context, sellerID uint64, page, pageSize int) ([]*model.Order, int64, error) {
	return r.list(ctx, "seller_id", sellerID, page, pageSize)
}

func (r *orderRepository) list(ctx context.Context, column string, id uint64, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	offset := (page - 1) * pageSize

	db := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where(column+" = ?", id)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, apperr.Database(err)
	}

	err := db.Offset(offset).
		Limit(pageSize).
		Order("created_at DESC").
		Preload("Items").
		Find(&orders).Error
	if err != nil {
		return nil, 0, apperr.Database(err)
	}

	return orders, total, nil
}
