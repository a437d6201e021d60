package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"marketplace/internal/model"
	"marketplace/pkg/apperr"
)

// PaymentTransactionRepository payment transaction repository interface.
// All state-machine writes are single-row conditional updates so that two
// concurrently delivered webhooks for the same transaction cannot both win.
type PaymentTransactionRepository interface {
	// Create transaction record
	Create(ctx context.Context, tx *model.PaymentTransaction) error

	// Get transaction by ID
	GetByID(ctx context.Context, id string) (*model.PaymentTransaction, error)

	// Get transaction by gateway order ID
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.PaymentTransaction, error)

	// Transition status conditional on the current status; reports whether
	// this call performed the transition
	TransitionStatus(ctx context.Context, id, from, to string) (bool, error)

	// Claim the right to materialize orders for this transaction; at most one
	// caller ever gets true
	ClaimMaterialization(ctx context.Context, id string) (bool, error)

	// Release a materialization claim after a failed attempt so a webhook
	// retry can run it again
	ReleaseMaterialization(ctx context.Context, id string) error

	// Claim the right to restore stock; at most one caller ever gets true
	ClaimStockRestoration(ctx context.Context, id string) (bool, error)

	// List pending transactions created before the cutoff, oldest first
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*model.PaymentTransaction, error)
}

// paymentTransactionRepository implementation
type paymentTransactionRepository struct {
	db *gorm.DB
}

// NewPaymentTransactionRepository creates a payment transaction repository
func NewPaymentTransactionRepository(db *gorm.DB) PaymentTransactionRepository {
	return &paymentTransactionRepository{db: db}
}

// Create creates a transaction record
func (r *paymentTransactionRepository) Create(ctx context.Context, tx *model.PaymentTransaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		return apperr.Database(err)
	}
	return nil
}

// GetByID gets a transaction by ID
func (r *paymentTransactionRepository) GetByID(ctx context.Context, id string) (*model.PaymentTransaction, error) {
	var tx model.PaymentTransaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("payment transaction not found").WithDetail("transaction_id", id)
		}
		return nil, apperr.Database(err)
	}
	return &tx, nil
}

// GetByGatewayOrderID gets a transaction by the gateway's order identifier
func (r *paymentTransactionRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.PaymentTransaction, error) {
	var tx model.PaymentTransaction
	err := r.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("payment transaction not found").WithDetail("gateway_order_id", gatewayOrderID)
		}
		return nil, apperr.Database(err)
	}
	return &tx, nil
}

// TransitionStatus applies "set status=to where status=from" atomically
func (r *paymentTransactionRepository) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if to != model.TransactionStatusPending {
		now := time.Now()
		updates["settled_at"] = &now
	}

	result := r.db.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, apperr.Database(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ClaimMaterialization flips materialized false->true atomically
func (r *paymentTransactionRepository) ClaimMaterialization(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("id = ? AND materialized = ?", id, false).
		Update("materialized", true)
	if result.Error != nil {
		return false, apperr.Database(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ReleaseMaterialization flips materialized back to false
func (r *paymentTransactionRepository) ReleaseMaterialization(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("id = ?", id).
		Update("materialized", false).Error
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// ListStalePending lists pending transactions older than the cutoff
func (r *paymentTransactionRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*model.PaymentTransaction, error) {
	var txs []*model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.TransactionStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, apperr.Database(err)
	}
	return txs, nil
}

// ClaimStockRestoration flips stock_restored false->true atomically. The flag
// makes restoration at-most-once under webhook retries and duplicate delivery.
func (r *paymentTransactionRepository) ClaimStockRestoration(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("id = ? AND stock_restored = ?", id, false).
		Update("stock_restored", true)
	if result.Error != nil {
		return false, apperr.Database(result.Error)
	}
	return result.RowsAffected > 0, nil
}
