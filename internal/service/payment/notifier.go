package payment

import (
	"context"

	"github.com/sirupsen/logrus"

	"marketplace/internal/model"
	"marketplace/pkg/log"
)

// Notifier receives reconciliation outcomes. Delivery is best effort and
// runs after the durable state change; a notifier error never fails the
// webhook.
type Notifier interface {
	OrdersCreated(ctx context.Context, transaction *model.PaymentTransaction, orders []*model.Order)
	PaymentFailed(ctx context.Context, transaction *model.PaymentTransaction)
}

// LogNotifier default notifier that only logs. Replace with a mail or push
// implementation in deployments that need buyer-facing notifications.
type LogNotifier struct{}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// OrdersCreated logs the materialized orders
func (n *LogNotifier) OrdersCreated(ctx context.Context, transaction *model.PaymentTransaction, orders []*model.Order) {
	orderNos := make([]string, 0, len(orders))
	for _, o := range orders {
		orderNos = append(orderNos, o.OrderNo)
	}
	log.WithFields(logrus.Fields{
		"transaction_id": transaction.ID,
		"buyer_id":       transaction.BuyerID,
		"orders":         orderNos,
	}).Info("payment captured, orders created")
}

// PaymentFailed logs the failed payment
func (n *LogNotifier) PaymentFailed(ctx context.Context, transaction *model.PaymentTransaction) {
	log.WithFields(logrus.Fields{
		"transaction_id": transaction.ID,
		"buyer_id":       transaction.BuyerID,
	}).Info("payment failed")
}
