package stock

import (
	"context"

	"github.com/sirupsen/logrus"

	"marketplace/internal/catalog"
	"marketplace/internal/model"
	"marketplace/internal/monitor"
	"marketplace/internal/repository"
	"marketplace/pkg/log"
)

// Ledger mediates every stock mutation. Reservations go through the
// conditional decrement in the product repository, so two concurrent
// reservations for the last unit cannot both succeed; each mutation leaves an
// audit row and drops the cached product entry.
type Ledger struct {
	products repository.ProductRepository
	logs     repository.StockLogRepository
	catalog  *catalog.Cache
	metrics  *monitor.MetricsCollector
}

// NewLedger creates a stock ledger
func NewLedger(
	products repository.ProductRepository,
	logs repository.StockLogRepository,
	productCatalog *catalog.Cache,
	metrics *monitor.MetricsCollector,
) *Ledger {
	return &Ledger{
		products: products,
		logs:     logs,
		catalog:  productCatalog,
		metrics:  metrics,
	}
}

// Reserve atomically decrements available stock and returns the remaining
// quantity. Fails without mutation when the product is inactive or the
// requested quantity exceeds availability.
func (l *Ledger) Reserve(ctx context.Context, productID uint64, qty int, transactionID string) (int, error) {
	remaining, err := l.products.ReserveStock(ctx, productID, qty)
	if err != nil {
		l.metrics.RecordStockReservation("failed")
		return 0, err
	}

	l.metrics.RecordStockReservation("reserved")
	l.catalog.Invalidate(productID)
	l.audit(ctx, productID, model.OperationTypeReserve, qty, transactionID, nil)
	return remaining, nil
}

// Restore atomically increments available stock back. Used by the
// compensation path and by failed-payment reconciliation.
func (l *Ledger) Restore(ctx context.Context, productID uint64, qty int, transactionID, reason string) error {
	if err := l.products.RestoreStock(ctx, productID, qty); err != nil {
		return err
	}

	l.metrics.RecordStockRestoration(reason)
	l.catalog.Invalidate(productID)
	l.audit(ctx, productID, model.OperationTypeRestore, qty, transactionID, &reason)
	return nil
}

// audit writes the stock log row. A failed audit write never fails the
// mutation it describes.
func (l *Ledger) audit(ctx context.Context, productID uint64, op int8, qty int, transactionID string, remark *string) {
	entry := &model.StockLog{
		ProductID:     productID,
		OperationType: op,
		Quantity:      qty,
		TransactionID: &transactionID,
		Remark:        remark,
	}
	if err := l.logs.Create(ctx, entry); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"product_id":     productID,
			"operation":      op,
			"transaction_id": transactionID,
		}).Error("failed to write stock log")
	}
}
