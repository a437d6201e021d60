package repository

import (
	"context"

	"gorm.io/gorm"

	"marketplace/internal/model"
	"marketplace/pkg/apperr"
)

// StockLogRepository audit log for stock ledger mutations
type StockLogRepository interface {
	// Create log entry
	Create(ctx context.Context, entry *model.StockLog) error

	// List entries for a payment transaction
	ListByTransactionID(ctx context.Context, transactionID string) ([]*model.StockLog, error)
}

// stockLogRepository implementation
type stockLogRepository struct {
	db *gorm.DB
}

// NewStockLogRepository creates a stock log repository
func NewStockLogRepository(db *gorm.DB) StockLogRepository {
	return &stockLogRepository{db: db}
}

// Create creates a log entry
func (r *stockLogRepository) Create(ctx context.Context, entry *model.StockLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return apperr.Database(err)
	}
	return nil
}

// ListByTransactionID lists entries for a transaction
func (r *stockLogRepository) ListByTransactionID(ctx context.Context, transactionID string) ([]*model.StockLog, error) {
	var entries []*model.StockLog
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, apperr.Database(err)
	}
	return entries, nil
}
