package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketplace/internal/catalog"
	"marketplace/internal/fraud"
	"marketplace/internal/gateway"
	"marketplace/internal/model"
	"marketplace/internal/monitor"
	"marketplace/internal/repository"
	"marketplace/pkg/apperr"
	"marketplace/pkg/log"
)

// CheckoutItem one requested cart line
type CheckoutItem struct {
	ProductID uint64 `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// CheckoutRequest cart checkout request
type CheckoutRequest struct {
	Items   []CheckoutItem `json:"items" binding:"required,min=1,dive"`
	Address model.Address  `json:"address" binding:"required"`
}

// BuyNowRequest single-product checkout request
type BuyNowRequest struct {
	ProductID uint64        `json:"product_id" binding:"required"`
	Quantity  int           `json:"quantity" binding:"required,min=1"`
	Address   model.Address `json:"address" binding:"required"`
}

// CheckoutResponse staged checkout awaiting payment
type CheckoutResponse struct {
	TempOrderID    string    `json:"temp_order_id"`
	TransactionID  string    `json:"transaction_id"`
	GatewayOrderID string    `json:"gateway_order_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// CheckoutService stages checkouts for payment. No order rows and no stock
// mutations happen here; both are deferred to payment capture.
type CheckoutService interface {
	// CartCheckout validates the cart, stages a temp order and registers the
	// payment with the gateway
	CartCheckout(ctx context.Context, buyerID uint64, ip string, req *CheckoutRequest) (*CheckoutResponse, error)

	// BuyNow stages a single-product checkout
	BuyNow(ctx context.Context, buyerID uint64, ip string, req *BuyNowRequest) (*CheckoutResponse, error)

	// SweepStaleTransactions cancels pending transactions whose staging window
	// elapsed without a gateway verdict
	SweepStaleTransactions(ctx context.Context) (int, error)
}

type checkoutService struct {
	catalog      *catalog.Cache
	tempOrders   repository.TempOrderRepository
	transactions repository.PaymentTransactionRepository
	gate         *fraud.Gate
	gateway      gateway.Client
	metrics      *monitor.MetricsCollector
	tempOrderTTL time.Duration
}

// NewCheckoutService creates a checkout service
func NewCheckoutService(
	productCatalog *catalog.Cache,
	tempOrders repository.TempOrderRepository,
	transactions repository.PaymentTransactionRepository,
	gate *fraud.Gate,
	gatewayClient gateway.Client,
	metrics *monitor.MetricsCollector,
	tempOrderTTL time.Duration,
) CheckoutService {
	return &checkoutService{
		catalog:      productCatalog,
		tempOrders:   tempOrders,
		transactions: transactions,
		gate:         gate,
		gateway:      gatewayClient,
		metrics:      metrics,
		tempOrderTTL: tempOrderTTL,
	}
}

// CartCheckout stages a multi-product checkout
func (s *checkoutService) CartCheckout(ctx context.Context, buyerID uint64, ip string, req *CheckoutRequest) (*CheckoutResponse, error) {
	return s.checkout(ctx, "cart", buyerID, ip, req.Items, req.Address)
}

// BuyNow stages a single-product checkout
func (s *checkoutService) BuyNow(ctx context.Context, buyerID uint64, ip string, req *BuyNowRequest) (*CheckoutResponse, error) {
	items := []CheckoutItem{{ProductID: req.ProductID, Quantity: req.Quantity}}
	return s.checkout(ctx, "buy_now", buyerID, ip, items, req.Address)
}

func (s *checkoutService) checkout(ctx context.Context, mode string, buyerID uint64, ip string, items []CheckoutItem, address model.Address) (*CheckoutResponse, error) {
	start := time.Now()

	if err := s.gate.CheckAndRecord(ctx, ip, buyerID); err != nil {
		if apperr.Is(err, apperr.KindRateExceeded) {
			if scope, ok := apperr.Detail(err)["scope"].(string); ok {
				s.metrics.RecordFraudRejection(scope)
			}
		}
		s.metrics.RecordCheckout(mode, "rejected", time.Since(start))
		return nil, err
	}

	lines, total, err := s.buildLines(ctx, items)
	if err != nil {
		s.metrics.RecordCheckout(mode, "invalid", time.Since(start))
		return nil, err
	}

	now := time.Now()
	tempOrder := &model.TempOrder{
		ID:         uuid.NewString(),
		BuyerID:    buyerID,
		Lines:      lines,
		Address:    address,
		TotalPrice: total,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.tempOrderTTL),
	}
	if err := s.tempOrders.Save(ctx, tempOrder, s.tempOrderTTL); err != nil {
		s.metrics.RecordCheckout(mode, "error", time.Since(start))
		return nil, err
	}

	gatewayOrder, err := s.gateway.CreateOrder(ctx, total, tempOrder.ID)
	if err != nil {
		// The snapshot expires on its own; nothing downstream references it
		// until a transaction row exists.
		log.WithError(err).WithField("temp_order_id", tempOrder.ID).Error("gateway order creation failed")
		s.metrics.RecordCheckout(mode, "error", time.Since(start))
		return nil, err
	}

	transaction := &model.PaymentTransaction{
		ID:             uuid.NewString(),
		BuyerID:        buyerID,
		TempOrderID:    tempOrder.ID,
		Amount:         total,
		Status:         model.TransactionStatusPending,
		GatewayOrderID: gatewayOrder.ID,
	}
	if err := s.transactions.Create(ctx, transaction); err != nil {
		s.metrics.RecordCheckout(mode, "error", time.Since(start))
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"buyer_id":       buyerID,
		"temp_order_id":  tempOrder.ID,
		"transaction_id": transaction.ID,
		"amount":         total,
		"lines":          len(lines),
	}).Info("checkout staged")

	s.metrics.RecordCheckout(mode, "staged", time.Since(start))

	return &CheckoutResponse{
		TempOrderID:    tempOrder.ID,
		TransactionID:  transaction.ID,
		GatewayOrderID: gatewayOrder.ID,
		Amount:         total,
		Currency:       gatewayOrder.Currency,
		ExpiresAt:      tempOrder.ExpiresAt,
	}, nil
}

// buildLines merges duplicate product ids, snapshots prices and validates
// availability. The stock check here is read-only; the authoritative
// conditional decrement happens at materialization.
func (s *checkoutService) buildLines(ctx context.Context, items []CheckoutItem) ([]model.TempOrderLine, int64, error) {
	merged := make(map[uint64]int, len(items))
	order := make([]uint64, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, 0, apperr.Validationf("invalid quantity %d for product %d", item.Quantity, item.ProductID)
		}
		if _, seen := merged[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		merged[item.ProductID] += item.Quantity
	}

	lines := make([]model.TempOrderLine, 0, len(order))
	var total int64
	for _, productID := range order {
		qty := merged[productID]

		product, err := s.catalog.Get(ctx, productID)
		if err != nil {
			return nil, 0, err
		}
		if !product.IsActive {
			return nil, 0, apperr.Validationf("product %d is not available", productID)
		}
		if !product.HasStock(qty) {
			return nil, 0, apperr.InsufficientStock(productID, qty, product.QuantityAvailable)
		}

		lineTotal := product.Price * int64(qty)
		lines = append(lines, model.TempOrderLine{
			ProductID: productID,
			SellerID:  product.SellerID,
			Quantity:  qty,
			UnitPrice: product.Price,
			LineTotal: lineTotal,
		})
		total += lineTotal
	}

	return lines, total, nil
}

// SweepStaleTransactions cancels pending transactions whose temp order TTL
// elapsed. Safe to run concurrently with webhook delivery: the conditional
// transition means a late capture and the sweep race for the same row and
// exactly one wins.
func (s *checkoutService) SweepStaleTransactions(ctx context.Context) (int, error) {
	const batchSize = 100

	cutoff := time.Now().Add(-s.tempOrderTTL)
	stale, err := s.transactions.ListStalePending(ctx, cutoff, batchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, tx := range stale {
		ok, err := s.transactions.TransitionStatus(ctx, tx.ID, model.TransactionStatusPending, model.TransactionStatusCancelled)
		if err != nil {
			log.WithError(err).WithField("transaction_id", tx.ID).Error("failed to cancel stale transaction")
			continue
		}
		if ok {
			swept++
		}
	}

	if swept > 0 {
		log.WithField("count", swept).Info("cancelled stale pending transactions")
	}
	return swept, nil
}
