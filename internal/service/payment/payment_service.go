package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketplace/internal/gateway"
	"marketplace/internal/model"
	"marketplace/internal/monitor"
	"marketplace/internal/repository"
	"marketplace/internal/service/stock"
	"marketplace/pkg/apperr"
	"marketplace/pkg/log"
)

// Gateway webhook event names
const (
	EventPaymentCaptured   = "payment.captured"
	EventPaymentFailed     = "payment.failed"
	EventShipmentPickedUp  = "shipment.picked_up"
	EventShipmentDelivered = "shipment.delivered"
)

type webhookEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type paymentEventPayload struct {
	TransactionID    string `json:"transaction_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
}

type shipmentEventPayload struct {
	OrderID    uint64 `json:"order_id"`
	ShipmentID string `json:"shipment_id"`
	AWBCode    string `json:"awb_code"`
}

// PaymentService reconciles gateway webhooks against the durable payment and
// order state. Every handler is idempotent: duplicate and out-of-order
// deliveries resolve through conditional single-row updates, and only the
// caller that wins a transition applies its side effects.
type PaymentService interface {
	// HandleWebhook verifies and applies one payment webhook. The signature is
	// checked over the raw body before any parsing.
	HandleWebhook(ctx context.Context, payload []byte, signature string) error

	// HandleShipmentWebhook applies a logistics status callback to the
	// per-seller order it names
	HandleShipmentWebhook(ctx context.Context, payload []byte, signature string) error

	// CancelPayment cancels a still-pending transaction for its buyer or an admin
	CancelPayment(ctx context.Context, requesterID uint64, role string, transactionID string) error

	// GetTransaction returns a transaction and its sibling orders
	GetTransaction(ctx context.Context, requesterID uint64, role string, transactionID string) (*model.PaymentTransaction, []*model.Order, error)
}

type paymentService struct {
	transactions repository.PaymentTransactionRepository
	orders       repository.OrderRepository
	tempOrders   repository.TempOrderRepository
	ledger       *stock.Ledger
	gateway      gateway.Client
	notifier     Notifier
	metrics      *monitor.MetricsCollector
}

// NewPaymentService creates a payment reconciliation service
func NewPaymentService(
	transactions repository.PaymentTransactionRepository,
	orders repository.OrderRepository,
	tempOrders repository.TempOrderRepository,
	ledger *stock.Ledger,
	gatewayClient gateway.Client,
	notifier Notifier,
	metrics *monitor.MetricsCollector,
) PaymentService {
	return &paymentService{
		transactions: transactions,
		orders:       orders,
		tempOrders:   tempOrders,
		ledger:       ledger,
		gateway:      gatewayClient,
		notifier:     notifier,
		metrics:      metrics,
	}
}

// HandleWebhook verifies the signature, parses the envelope and dispatches
func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if err := s.gateway.VerifyWebhookSignature(payload, signature); err != nil {
		s.metrics.RecordWebhook("unverified", "rejected", 0)
		return err
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return apperr.Validation("malformed webhook payload")
	}

	start := time.Now()
	var err error
	switch envelope.Event {
	case EventPaymentCaptured:
		err = s.handleCaptured(ctx, envelope.Payload)
	case EventPaymentFailed:
		err = s.handleFailed(ctx, envelope.Payload)
	default:
		// Unknown events are acknowledged so the gateway stops retrying
		log.WithField("event", envelope.Event).Info("ignoring unhandled webhook event")
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordWebhook(envelope.Event, status, time.Since(start))
	return err
}

// handleCaptured settles the transaction as paid and materializes orders.
// Re-delivery after a crash mid-materialization is the recovery path: the
// status transition is already lost to the first delivery, but the
// materialization claim decides whether order creation still needs to run.
func (s *paymentService) handleCaptured(ctx context.Context, raw json.RawMessage) error {
	var p paymentEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperr.Validation("malformed payment payload")
	}

	tx, err := s.lookupTransaction(ctx, p)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			log.WithField("gateway_order_id", p.GatewayOrderID).Warn("capture webhook for unknown transaction, acknowledging")
			return nil
		}
		return err
	}

	transitioned, err := s.transactions.TransitionStatus(ctx, tx.ID, model.TransactionStatusPending, model.TransactionStatusPaid)
	if err != nil {
		return err
	}
	if !transitioned {
		current, err := s.transactions.GetByID(ctx, tx.ID)
		if err != nil {
			return err
		}
		if current.Status != model.TransactionStatusPaid {
			// A conflicting verdict already settled this transaction. First
			// verdict wins; acknowledge so the gateway stops retrying.
			log.WithFields(logrus.Fields{
				"transaction_id": tx.ID,
				"status":         current.Status,
			}).Warn("capture webhook for transaction settled otherwise")
			return nil
		}
	}

	claimed, err := s.transactions.ClaimMaterialization(ctx, tx.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// Duplicate delivery. The claim is held either by a completed
		// materialization or by a concurrent delivery still in flight; only
		// the first case may be acknowledged. MarkPaid is a no-op when the
		// sibling orders already settled.
		if _, err := s.orders.MarkPaid(ctx, tx.ID, p.GatewayPaymentID); err != nil {
			return err
		}
		orders, err := s.orders.ListByTransactionID(ctx, tx.ID)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			// A concurrent delivery holds the claim with no orders created
			// yet. If that delivery fails it releases the claim, so this one
			// must not be acknowledged or the gateway stops redelivering and
			// the transaction strands paid and unmaterialized.
			return apperr.Conflict("order materialization in flight").WithDetail("transaction_id", tx.ID)
		}
		return nil
	}

	orders, err := s.materialize(ctx, tx)
	if err != nil {
		// Release the claim so the gateway's retry attempts again
		if relErr := s.transactions.ReleaseMaterialization(ctx, tx.ID); relErr != nil {
			log.WithError(relErr).WithField("transaction_id", tx.ID).Error("failed to release materialization claim")
		}
		return err
	}
	s.metrics.RecordMaterialization(len(orders))

	if _, err := s.orders.MarkPaid(ctx, tx.ID, p.GatewayPaymentID); err != nil {
		return err
	}

	if err := s.tempOrders.Delete(ctx, tx.TempOrderID); err != nil {
		log.WithError(err).WithField("temp_order_id", tx.TempOrderID).Warn("failed to delete staged order")
	}

	s.notifier.OrdersCreated(ctx, tx, orders)
	return nil
}

// materialize loads the staged snapshot, reserves stock for every line and
// creates one order per seller. All-or-nothing: a reservation or creation
// failure restores every unit already taken and no order row survives.
func (s *paymentService) materialize(ctx context.Context, tx *model.PaymentTransaction) ([]*model.Order, error) {
	tempOrder, err := s.tempOrders.Get(ctx, tx.TempOrderID)
	if err != nil {
		return nil, err
	}

	var reserved []model.TempOrderLine
	compensate := func() {
		for _, line := range reserved {
			if err := s.ledger.Restore(ctx, line.ProductID, line.Quantity, tx.ID, "compensation"); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"transaction_id": tx.ID,
					"product_id":     line.ProductID,
					"quantity":       line.Quantity,
				}).Error("compensating stock restore failed")
			}
		}
		s.metrics.RecordCompensation()
	}

	for _, line := range tempOrder.Lines {
		if _, err := s.ledger.Reserve(ctx, line.ProductID, line.Quantity, tx.ID); err != nil {
			compensate()
			return nil, err
		}
		reserved = append(reserved, line)
	}

	orders := splitBySeller(tx, tempOrder)
	if err := s.orders.CreateBatch(ctx, orders); err != nil {
		compensate()
		return nil, err
	}

	return orders, nil
}

// splitBySeller groups the staged lines into one order per seller, keeping
// sellers in the sequence their first line appeared in the cart
func splitBySeller(tx *model.PaymentTransaction, tempOrder *model.TempOrder) []*model.Order {
	bySeller := make(map[uint64]*model.Order)
	var sellers []uint64

	for _, line := range tempOrder.Lines {
		order, ok := bySeller[line.SellerID]
		if !ok {
			order = &model.Order{
				OrderNo:              "ORD-" + uuid.NewString(),
				BuyerID:              tempOrder.BuyerID,
				SellerID:             line.SellerID,
				Status:               model.OrderStatusPending,
				PaymentStatus:        model.PaymentStatusPending,
				PaymentTransactionID: tx.ID,
				GatewayOrderID:       tx.GatewayOrderID,
				ShippingAddress:      tempOrder.Address.String(),
			}
			bySeller[line.SellerID] = order
			sellers = append(sellers, line.SellerID)
		}
		order.TotalPrice += line.LineTotal
		order.Items = append(order.Items, model.OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}

	orders := make([]*model.Order, 0, len(sellers))
	for _, sellerID := range sellers {
		orders = append(orders, bySeller[sellerID])
	}
	return orders
}

// handleFailed settles the transaction as failed and, when orders were
// already materialized, cancels them and restores their stock exactly once
func (s *paymentService) handleFailed(ctx context.Context, raw json.RawMessage) error {
	var p paymentEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperr.Validation("malformed payment payload")
	}

	tx, err := s.lookupTransaction(ctx, p)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			log.WithField("gateway_order_id", p.GatewayOrderID).Warn("failure webhook for unknown transaction, acknowledging")
			return nil
		}
		return err
	}

	transitioned, err := s.transactions.TransitionStatus(ctx, tx.ID, model.TransactionStatusPending, model.TransactionStatusFailed)
	if err != nil {
		return err
	}
	if !transitioned {
		current, err := s.transactions.GetByID(ctx, tx.ID)
		if err != nil {
			return err
		}
		if current.Status != model.TransactionStatusFailed {
			log.WithFields(logrus.Fields{
				"transaction_id": tx.ID,
				"status":         current.Status,
			}).Warn("failure webhook for transaction settled otherwise")
			return nil
		}
	}

	if _, err := s.orders.MarkPaymentFailed(ctx, tx.ID); err != nil {
		return err
	}

	current, err := s.transactions.GetByID(ctx, tx.ID)
	if err != nil {
		return err
	}
	if current.Materialized {
		if err := s.restoreMaterializedStock(ctx, tx.ID); err != nil {
			return err
		}
	}

	if err := s.tempOrders.Delete(ctx, tx.TempOrderID); err != nil {
		log.WithError(err).WithField("temp_order_id", tx.TempOrderID).Warn("failed to delete staged order")
	}

	s.notifier.PaymentFailed(ctx, tx)
	return nil
}

// restoreMaterializedStock gives every reserved unit back, guarded by the
// stock_restored claim so duplicate failure webhooks restore at most once
func (s *paymentService) restoreMaterializedStock(ctx context.Context, transactionID string) error {
	claimed, err := s.transactions.ClaimStockRestoration(ctx, transactionID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	orders, err := s.orders.ListByTransactionID(ctx, transactionID)
	if err != nil {
		return err
	}

	for _, order := range orders {
		for _, item := range order.Items {
			if err := s.ledger.Restore(ctx, item.ProductID, item.Quantity, transactionID, "payment_failed"); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"transaction_id": transactionID,
					"product_id":     item.ProductID,
				}).Error("stock restore failed")
			}
		}
	}
	return nil
}

// HandleShipmentWebhook applies a logistics callback. Duplicate deliveries
// for a status the order already passed are acknowledged; transitions the
// fulfillment machine forbids are rejected.
func (s *paymentService) HandleShipmentWebhook(ctx context.Context, payload []byte, signature string) error {
	if err := s.gateway.VerifyWebhookSignature(payload, signature); err != nil {
		return err
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return apperr.Validation("malformed webhook payload")
	}

	var p shipmentEventPayload
	if err := json.Unmarshal(envelope.Payload, &p); err != nil {
		return apperr.Validation("malformed shipment payload")
	}

	switch envelope.Event {
	case EventShipmentPickedUp:
		if err := s.orders.SetShipmentInfo(ctx, p.OrderID, p.ShipmentID, p.AWBCode); err != nil {
			return err
		}
		return s.transitionOrder(ctx, p.OrderID, model.OrderStatusProcessing, model.OrderStatusShipped)
	case EventShipmentDelivered:
		return s.transitionOrder(ctx, p.OrderID, model.OrderStatusShipped, model.OrderStatusDelivered)
	default:
		log.WithField("event", envelope.Event).Info("ignoring unhandled shipment event")
		return nil
	}
}

func (s *paymentService) transitionOrder(ctx context.Context, orderID uint64, from, to string) error {
	ok, err := s.orders.TransitionStatus(ctx, orderID, from, to)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == to || (to == model.OrderStatusShipped && order.Status == model.OrderStatusDelivered) {
		// Duplicate or late delivery of an already-applied callback
		return nil
	}
	return apperr.Conflict("order cannot move to "+to).
		WithDetail("order_id", orderID).
		WithDetail("status", order.Status)
}

// CancelPayment cancels a pending transaction on buyer request. Settled
// transactions never change; the buyer races the gateway verdict and the
// first writer wins.
func (s *paymentService) CancelPayment(ctx context.Context, requesterID uint64, role string, transactionID string) error {
	tx, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if tx.BuyerID != requesterID && role != model.RoleAdmin {
		return apperr.Forbidden("transaction belongs to another buyer")
	}
	if tx.IsSettled() {
		return apperr.Conflict("payment already settled").WithDetail("status", tx.Status)
	}

	ok, err := s.transactions.TransitionStatus(ctx, transactionID, model.TransactionStatusPending, model.TransactionStatusCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("payment already settled")
	}

	if err := s.tempOrders.Delete(ctx, tx.TempOrderID); err != nil {
		log.WithError(err).WithField("temp_order_id", tx.TempOrderID).Warn("failed to delete staged order")
	}

	log.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"requester_id":   requesterID,
	}).Info("payment cancelled on request")
	return nil
}

// GetTransaction returns a transaction and the orders it produced
func (s *paymentService) GetTransaction(ctx context.Context, requesterID uint64, role string, transactionID string) (*model.PaymentTransaction, []*model.Order, error) {
	tx, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	if tx.BuyerID != requesterID && role != model.RoleAdmin {
		return nil, nil, apperr.Forbidden("transaction belongs to another buyer")
	}

	orders, err := s.orders.ListByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	return tx, orders, nil
}

func (s *paymentService) lookupTransaction(ctx context.Context, p paymentEventPayload) (*model.PaymentTransaction, error) {
	if p.TransactionID != "" {
		return s.transactions.GetByID(ctx, p.TransactionID)
	}
	if p.GatewayOrderID != "" {
		return s.transactions.GetByGatewayOrderID(ctx, p.GatewayOrderID)
	}
	return nil, apperr.Validation("webhook payload names no transaction")
}
