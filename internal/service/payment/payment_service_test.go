package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/catalog"
	"marketplace/internal/gateway"
	"marketplace/internal/model"
	"marketplace/internal/monitor"
	"marketplace/internal/repository"
	"marketplace/internal/service/stock"
	"marketplace/pkg/apperr"
)

const testWebhookSecret = "test-webhook-secret"

// Prometheus collectors register globally, one collector per test binary
var testMetrics = monitor.NewMetricsCollector()

// fakeProductRepo in-memory product store with the same conditional
// reservation semantics as the MySQL implementation
type fakeProductRepo struct {
	mu       sync.Mutex
	products map[uint64]*model.Product
}

func newFakeProductRepo(products ...*model.Product) *fakeProductRepo {
	repo := &fakeProductRepo{products: make(map[uint64]*model.Product)}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (f *fakeProductRepo) Create(ctx context.Context, product *model.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[product.ID] = product
	return nil
}

func (f *fakeProductRepo) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, apperr.NotFound("product not found").WithDetail("product_id", id)
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProductRepo) ListByIDs(ctx context.Context, ids []uint64) ([]*model.Product, error) {
	var out []*model.Product
	for _, id := range ids {
		if p, err := f.GetByID(ctx, id); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProductRepo) ReserveStock(ctx context.Context, id uint64, qty int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return 0, apperr.NotFound("product not found").WithDetail("product_id", id)
	}
	if !p.IsActive {
		return 0, apperr.Validationf("product %d is not active", id)
	}
	if p.QuantityAvailable < qty {
		return 0, apperr.InsufficientStock(id, qty, p.QuantityAvailable)
	}
	p.QuantityAvailable -= qty
	p.Sales += qty
	return p.QuantityAvailable, nil
}

func (f *fakeProductRepo) RestoreStock(ctx context.Context, id uint64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return apperr.NotFound("product not found").WithDetail("product_id", id)
	}
	p.QuantityAvailable += qty
	p.Sales -= qty
	return nil
}

func (f *fakeProductRepo) List(ctx context.Context, page, pageSize int, activeOnly bool) ([]*model.Product, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Product
	for _, p := range f.products {
		copied := *p
		out = append(out, &copied)
	}
	return out, int64(len(out)), nil
}

func (f *fakeProductRepo) available(id uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].QuantityAvailable
}

// fakeStockLogRepo records audit rows in memory
type fakeStockLogRepo struct {
	mu   sync.Mutex
	logs []*model.StockLog
}

func (f *fakeStockLogRepo) Create(ctx context.Context, entry *model.StockLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, entry)
	return nil
}

func (f *fakeStockLogRepo) ListByTransactionID(ctx context.Context, transactionID string) ([]*model.StockLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.StockLog
	for _, entry := range f.logs {
		if entry.TransactionID != nil && *entry.TransactionID == transactionID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// fakeTransactionRepo in-memory transaction store mirroring the conditional
// update semantics of the MySQL implementation
type fakeTransactionRepo struct {
	mu  sync.Mutex
	txs map[string]*model.PaymentTransaction
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{txs: make(map[string]*model.PaymentTransaction)}
}

func (f *fakeTransactionRepo) Create(ctx context.Context, tx *model.PaymentTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *tx
	f.txs[tx.ID] = &copied
	return nil
}

func (f *fakeTransactionRepo) GetByID(ctx context.Context, id string) (*model.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[id]
	if !ok {
		return nil, apperr.NotFound("payment transaction not found").WithDetail("transaction_id", id)
	}
	copied := *tx
	return &copied, nil
}

func (f *fakeTransactionRepo) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.txs {
		if tx.GatewayOrderID == gatewayOrderID {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("payment transaction not found").WithDetail("gateway_order_id", gatewayOrderID)
}

func (f *fakeTransactionRepo) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[id]
	if !ok || tx.Status != from {
		return false, nil
	}
	tx.Status = to
	if to != model.TransactionStatusPending {
		now := time.Now()
		tx.SettledAt = &now
	}
	return true, nil
}

func (f *fakeTransactionRepo) ClaimMaterialization(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[id]
	if !ok || tx.Materialized {
		return false, nil
	}
	tx.Materialized = true
	return true, nil
}

func (f *fakeTransactionRepo) ReleaseMaterialization(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.txs[id]; ok {
		tx.Materialized = false
	}
	return nil
}

func (f *fakeTransactionRepo) ClaimStockRestoration(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[id]
	if !ok || tx.StockRestored {
		return false, nil
	}
	tx.StockRestored = true
	return true, nil
}

func (f *fakeTransactionRepo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*model.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.PaymentTransaction
	for _, tx := range f.txs {
		if tx.Status == model.TransactionStatusPending && tx.CreatedAt.Before(before) {
			copied := *tx
			out = append(out, &copied)
		}
	}
	return out, nil
}

// fakeOrderRepo in-memory order store
type fakeOrderRepo struct {
	mu     sync.Mutex
	nextID uint64
	orders map[uint64]*model.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{nextID: 1, orders: make(map[uint64]*model.Order)}
}

func (f *fakeOrderRepo) CreateBatch(ctx context.Context, orders []*model.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range orders {
		order.ID = f.nextID
		f.nextID++
		copied := *order
		f.orders[order.ID] = &copied
	}
	return nil
}

func (f *fakeOrderRepo) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, apperr.NotFound("order not found").WithDetail("order_id", id)
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderRepo) ListByTransactionID(ctx context.Context, transactionID string) ([]*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Order
	for id := uint64(1); id < f.nextID; id++ {
		if order, ok := f.orders[id]; ok && order.PaymentTransactionID == transactionID {
			copied := *order
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) MarkPaid(ctx context.Context, transactionID, gatewayPaymentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var affected int64
	now := time.Now()
	for _, order := range f.orders {
		if order.PaymentTransactionID == transactionID && order.PaymentStatus == model.PaymentStatusPending {
			order.PaymentStatus = model.PaymentStatusPaid
			order.Status = model.OrderStatusProcessing
			order.GatewayPaymentID = gatewayPaymentID
			order.PaidAt = &now
			affected++
		}
	}
	return affected, nil
}

func (f *fakeOrderRepo) MarkPaymentFailed(ctx context.Context, transactionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var affected int64
	now := time.Now()
	for _, order := range f.orders {
		if order.PaymentTransactionID == transactionID && order.PaymentStatus == model.PaymentStatusPending {
			order.PaymentStatus = model.PaymentStatusFailed
			order.Status = model.OrderStatusCancelled
			order.CancelledAt = &now
			affected++
		}
	}
	return affected, nil
}

func (f *fakeOrderRepo) TransitionStatus(ctx context.Context, id uint64, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	return true, nil
}

func (f *fakeOrderRepo) SetShipmentInfo(ctx context.Context, id uint64, shipmentID, awbCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return apperr.NotFound("order not found").WithDetail("order_id", id)
	}
	order.ShipmentID = &shipmentID
	order.AWBCode = &awbCode
	return nil
}

func (f *fakeOrderRepo) ListByBuyer(ctx context.Context, buyerID uint64, page, pageSize int) ([]*model.Order, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Order
	for _, order := range f.orders {
		if order.BuyerID == buyerID {
			copied := *order
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeOrderRepo) ListBySeller(ctx context.Context, sellerID uint64, page, pageSize int) ([]*model.Order, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Order
	for _, order := range f.orders {
		if order.SellerID == sellerID {
			copied := *order
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

// fakeGateway verifies signatures with the real HMAC check
type fakeGateway struct{}

func (fakeGateway) CreateOrder(ctx context.Context, amountCents int64, receipt string) (*gateway.GatewayOrder, error) {
	return &gateway.GatewayOrder{ID: "gw_" + receipt, Amount: amountCents, Currency: "INR", Receipt: receipt}, nil
}

func (fakeGateway) VerifyWebhookSignature(payload []byte, signature string) error {
	return gateway.VerifySignature(payload, signature, testWebhookSecret)
}

// testEnv everything a reconciliation test needs
type testEnv struct {
	service      PaymentService
	transactions *fakeTransactionRepo
	orders       *fakeOrderRepo
	products     *fakeProductRepo
	stockLogs    *fakeStockLogRepo
	tempOrders   repository.TempOrderRepository
}

func newTestEnv(t *testing.T, products ...*model.Product) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	productRepo := newFakeProductRepo(products...)
	productCatalog, err := catalog.NewCache(productRepo, time.Minute, 1000)
	require.NoError(t, err)
	require.NoError(t, productCatalog.Warm(context.Background()))

	stockLogs := &fakeStockLogRepo{}
	ledger := stock.NewLedger(productRepo, stockLogs, productCatalog, testMetrics)

	transactions := newFakeTransactionRepo()
	orders := newFakeOrderRepo()
	tempOrders := repository.NewTempOrderRepository(client)

	service := NewPaymentService(transactions, orders, tempOrders, ledger, fakeGateway{}, NewLogNotifier(), testMetrics)

	return &testEnv{
		service:      service,
		transactions: transactions,
		orders:       orders,
		products:     productRepo,
		stockLogs:    stockLogs,
		tempOrders:   tempOrders,
	}
}

func twoSellerProducts() []*model.Product {
	return []*model.Product{
		{ID: 1, SellerID: 10, Name: "P1", Price: 1500, QuantityAvailable: 5, IsActive: true},
		{ID: 2, SellerID: 20, Name: "P2", Price: 500, QuantityAvailable: 3, IsActive: true},
	}
}

// stageCheckout seeds a temp order and pending transaction, as checkout would
func (env *testEnv) stageCheckout(t *testing.T, txID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	tempOrder := &model.TempOrder{
		ID:      "to-" + txID,
		BuyerID: 42,
		Lines: []model.TempOrderLine{
			{ProductID: 1, SellerID: 10, Quantity: 2, UnitPrice: 1500, LineTotal: 3000},
			{ProductID: 2, SellerID: 20, Quantity: 1, UnitPrice: 500, LineTotal: 500},
		},
		Address:    model.Address{Line1: "1 Test St", City: "Springfield", State: "IL", PostalCode: "62704", Country: "US"},
		TotalPrice: 3500,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
	require.NoError(t, env.tempOrders.Save(ctx, tempOrder, time.Hour))

	require.NoError(t, env.transactions.Create(ctx, &model.PaymentTransaction{
		ID:             txID,
		BuyerID:        42,
		TempOrderID:    tempOrder.ID,
		Amount:         3500,
		Status:         model.TransactionStatusPending,
		GatewayOrderID: "gw_" + txID,
		CreatedAt:      now,
	}))
}

func signedWebhook(t *testing.T, event, txID string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"event": event,
		"payload": map[string]interface{}{
			"transaction_id":     txID,
			"gateway_order_id":   "gw_" + txID,
			"gateway_payment_id": "pay_" + txID,
		},
	})
	require.NoError(t, err)
	return payload, gateway.SignPayload(payload, testWebhookSecret)
}

func TestHandleWebhook_CapturedMaterializesPerSellerOrders(t *testing.T) {
	env := newTestEnv(t, twoSellerProducts()...)
	ctx := context.Background()
	env.stageCheckout(t, "tx-1")

	payload, signature := signedWebhook(t, EventPaymentCaptured, "tx-1")
	require.NoError(t, env.service.HandleWebhook(ctx, payload, signature))

	// Transaction settled as paid and marked materialized
	tx, err := env.transactions.GetByID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusPaid, tx.Status)
	assert.True(t, tx.Materialized)
	assert.NotNil(t, tx.SettledAt)

	// One order per seller, both paid and processing
	orders, err := env.orders.ListByTransactionID(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, order := range orders {
		assert.Equal(t, model.PaymentStatusPaid, order.PaymentStatus)
		assert.Equal(t, model.OrderStatusProcessing, order.Status)
		assert.Equal(t, "pay_tx-1", order.GatewayPaymentID)
		assert.Equal(t, uint64(42), order.BuyerID)
	}
	assert.Equal(t, uint64(10), orders[0].SellerID)
	assert.Equal(t, int64(3000), orders[0].TotalPrice)
	assert.Equal(t, uint64(20), orders[1].SellerID)
	assert.Equal(t, int64(500), orders[1].TotalPrice)

	// Stock was reserved
	assert.Equal(t, 3, env.products.available(1))
	assert.Equal(t, 2, env.products.available(2))

	// Staged snapshot removed
	_, err = env.tempOrders.Get(ctx, "to-tx-1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestHandleWebhook_DuplicateCaptureIsIdempotent(t *testing.T) {
	env := newTestEnv(t, twoSellerProducts()...)
	ctx := context.Background()
	env.stageCheckout(t, "tx-1")

	payload, signature := signedWebhook(t, EventPaymentCaptured, "tx-1")
	require.NoError(t, env.service.HandleWebhook(ctx, payload, signature))
	require.NoError(t, env.service.HandleWebhook(ctx, payload, signature))

	orders, err := env.orders.ListByTransactionID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	// Stock reserved exactly once
	assert.Equal(t, 3, env.products.available(1))
	assert.Equal(t, 2, env.products.available(2))
}

func TestHandleWebhook_DuplicateDuringInFlightMaterializationNotAcked(t *testing.T) {
	env := newTestEnv(t, twoSellerProducts()...)
	ctx := context.Background()
	env.stageCheckout(t, "tx-1")

	// A concurrent first delivery already settled the status and holds the
	// materialization claim but has not created any orders yet
	env.transactions.mu.Lock()
	env.transactions.txs["tx-1"].Status = model.TransactionStatusPaid
	env.transactions.txs["tx-1"].Materialized = true
	env.transactions.mu.Unlock()

	// The duplicate must not be acknowledged: if the in-flight delivery
	// fails and releases the claim, a 2xx here would have stopped the
	// gateway's redelivery for good.
	payload, signature := signedWebhook(t, EventPaymentCaptured, "tx-1")
	err := env.service.HandleWebhook(ctx, payload, signature)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	orders, listErr := env.orders.ListByTransactionID(ctx, "tx-1")
	require.NoError(t, listErr)
	assert.Empty(t, orders)

	// The in-flight delivery fails and releases the claim; the gateway's
	// redelivery now completes materialization
	require.NoError(t, env.transactions.ReleaseMaterialization(ctx, "tx-1"))
	require.NoError(t, env.service.HandleWebhook(ctx, payload, signature))

	orders, listErr = env.orders.ListByTransactionID(ctx, "tx-1")
	require.NoError(t, listErr)
	assert.Len(t, orders, 2)
}

func TestHandleWebhook_PartialStockFailureCompensates(t *testing.T) {
	products := twoSellerProducts()
	products[1].QuantityAvailable = 0 // second line cannot be reserved
	env := newTestEnv(t, products...)
	ctx := context.Background()
	env.stageCheckout(t, "tx-1")

	payload, signature := signedWebhook(t, EventPaymentCaptured, "tx-1")
	err := env.service.HandleWebhook(ctx, payload, signature)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientStock))

	// No orders survive and the first line's reservation was rolled back
	orders, listErr := env.orders.ListByTransactionID(ctx, "tx-1")
	require.NoError(t, listErr)
	assert.Empty(t, orders)
	assert.Equal(t, 5, env.products.available(1))

	// Claim released so a redelivery can retry
	tx, getErr := env.transactions.GetByID(ctx, "tx-1")
	require.NoError(t, getErr)
	assert.False(t, tx.Materialized)
	assert.Equal(t, model.TransactionStatusPaid, tx.Status)

	// Restock and redeliver: the retry now materializes
	require.NoError(t, env.products.RestoreStock(ctx, 2, 3))
	require.NoError(t, env.service.HandleWebhook(ctx, payload, signature))

	orders, listErr = env.orders.ListByTransactionID(ctx, "tx-1")
	require.NoError(t, listErr)
	assert.Len(t, orders, 2)
}

func TestHandleWebhook_FailedCancelsWithoutOrders(t *testing.T) {
	env := newTestEnv(t, twoSellerProducts()...)
	ctx := context.Background()
	env.stageCheckout(t, "tx-1")

	payload, signature := signedWebhook(t, EventPaymentFailed, "tx-1")
	require.NoError(t, env.service.HandleWebhook(ctx, payload, signature))

	tx, err := env.transactions.GetByID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusFailed, tx.Status)

	// Nothing was materialized and stock never moved
	orders, err := env.orders.ListByTransactionID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, 5, env.products.available(1))
	assert.Equal(t, 3, env.products.available(2))
}

func TestHandleWebhook_ConflictingVerdictsFirstWins(t *testing.T) {
	env := newTestEnv(t, twoSellerProducts()...)
	ctx := context.Background()
	env.stageCheckout(t, "tx-1")

	captured, capturedSig := signedWebhook(t, EventPaymentCaptured, "tx-1")
	require.NoError(t, env.service.HandleWebhook(ctx, captured, capturedSig))

	// The late failure verdict is acknowledged but changes nothing
	failed, failedSig := signedWebhook(t, EventPaymentFailed, "tx-1")
	require.NoError(t, env.service.HandleWebhook(ctx, failed, failedSig))

	tx, err := env.transactions.GetByID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusPaid, tx.Status)

	orders, err := env.orders.ListByTransactionID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Len(t, orders, 2)
	for _, order := range orders {
		assert.Equal(t, model.PaymentStatusPaid, order.PaymentStatus)
	}
}

func TestHandleWebhook_BadSignatureRejectedBeforeParsing(t *testing.T) {
	env := newTestEnv(t, twoSellerProducts()...)
	ctx := context.Background()
	env.stageCheckout(t, "tx-1")

	payload, _ := signedWebhook(t, EventPaymentCaptured, "tx-1")
	err := env.service.HandleWebhook(ctx, payload, "deadbeef")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindSignature))

	// State untouched
	tx, getErr := env.transactions.GetByID(ctx, "tx-1")
	require.NoError(t, getErr)
	assert.Equal(t, model.TransactionStatusPending, tx.Status)
	assert.Equal(t, 5, env.products.available(1))
}

func TestHandleWebhook_UnknownEventAcknowledged(t *testing.T) {
	env := newTestEnv(t, twoSellerProducts()...)
	ctx := context.Background()

	payload, signature := signedWebhook(t, "payment.authorized", "tx-1")
	assert.NoError(t, env.service.HandleWebhook(ctx, payload, signature))
}

func TestHandleWebhook_UnknownTransactionAcknowledged(t *testing.T) {
	env := newTestEnv(t, twoSellerProducts()...)
	ctx := context.Background()

	payload, signature := signedWebhook(t, EventPaymentCaptured, "tx-missing")
	assert.NoError(t, env.service.HandleWebhook(ctx, payload, signature))
}

func TestHandleWebhook_FailedAfterMaterializationRestoresOnce(t *testing.T) {
	env := newTestEnv(t, twoSellerProducts()...)
	ctx := context.Background()
	env.stageCheckout(t, "tx-1")

	// Force the unusual path: orders materialized, then a failure verdict
	// arrives for a transaction somebody reset to pending.
	captured, capturedSig := signedWebhook(t, EventPaymentCaptured, "tx-1")
	require.NoError(t, env.service.HandleWebhook(ctx, captured, capturedSig))
	env.transactions.mu.Lock()
	env.transactions.txs["tx-1"].Status = model.TransactionStatusPending
	env.transactions.mu.Unlock()

	failed, failedSig := signedWebhook(t, EventPaymentFailed, "tx-1")
	require.NoError(t, env.service.HandleWebhook(ctx, failed, failedSig))
	require.NoError(t, env.service.HandleWebhook(ctx, failed, failedSig))

	// Stock restored exactly once despite the duplicate
	assert.Equal(t, 5, env.products.available(1))
	assert.Equal(t, 3, env.products.available(2))

	tx, err := env.transactions.GetByID(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, tx.StockRestored)
}

func TestCancelPayment(t *testing.T) {
	t.Run("PendingCancels", func(t *testing.T) {
		env := newTestEnv(t, twoSellerProducts()...)
		ctx := context.Background()
		env.stageCheckout(t, "tx-1")

		require.NoError(t, env.service.CancelPayment(ctx, 42, model.RoleBuyer, "tx-1"))

		tx, err := env.transactions.GetByID(ctx, "tx-1")
		require.NoError(t, err)
		assert.Equal(t, model.TransactionStatusCancelled, tx.Status)
	})

	t.Run("SettledConflicts", func(t *testing.T) {
		env := newTestEnv(t, twoSellerProducts()...)
		ctx := context.Background()
		env.stageCheckout(t, "tx-1")

		payload, signature := signedWebhook(t, EventPaymentCaptured, "tx-1")
		require.NoError(t, env.service.HandleWebhook(ctx, payload, signature))

		err := env.service.CancelPayment(ctx, 42, model.RoleBuyer, "tx-1")
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindConflict))
	})

	t.Run("WrongBuyerForbidden", func(t *testing.T) {
		env := newTestEnv(t, twoSellerProducts()...)
		ctx := context.Background()
		env.stageCheckout(t, "tx-1")

		err := env.service.CancelPayment(ctx, 7, model.RoleBuyer, "tx-1")
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
	})

	t.Run("AdminMayCancelAny", func(t *testing.T) {
		env := newTestEnv(t, twoSellerProducts()...)
		ctx := context.Background()
		env.stageCheckout(t, "tx-1")

		require.NoError(t, env.service.CancelPayment(ctx, 7, model.RoleAdmin, "tx-1"))

		tx, err := env.transactions.GetByID(ctx, "tx-1")
		require.NoError(t, err)
		assert.Equal(t, model.TransactionStatusCancelled, tx.Status)
	})
}

func TestHandleShipmentWebhook(t *testing.T) {
	signedShipment := func(t *testing.T, event string, orderID uint64) ([]byte, string) {
		t.Helper()
		payload, err := json.Marshal(map[string]interface{}{
			"event": event,
			"payload": map[string]interface{}{
				"order_id":    orderID,
				"shipment_id": fmt.Sprintf("shp_%d", orderID),
				"awb_code":    fmt.Sprintf("awb_%d", orderID),
			},
		})
		require.NoError(t, err)
		return payload, gateway.SignPayload(payload, testWebhookSecret)
	}

	setup := func(t *testing.T) *testEnv {
		env := newTestEnv(t, twoSellerProducts()...)
		env.stageCheckout(t, "tx-1")
		payload, signature := signedWebhook(t, EventPaymentCaptured, "tx-1")
		require.NoError(t, env.service.HandleWebhook(context.Background(), payload, signature))
		return env
	}

	t.Run("PickupShipsOrder", func(t *testing.T) {
		env := setup(t)
		ctx := context.Background()

		payload, signature := signedShipment(t, EventShipmentPickedUp, 1)
		require.NoError(t, env.service.HandleShipmentWebhook(ctx, payload, signature))

		order, err := env.orders.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusShipped, order.Status)
		require.NotNil(t, order.ShipmentID)
		assert.Equal(t, "shp_1", *order.ShipmentID)

		// The sibling order is untouched
		sibling, err := env.orders.GetByID(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusProcessing, sibling.Status)
	})

	t.Run("DeliveryCompletesOrder", func(t *testing.T) {
		env := setup(t)
		ctx := context.Background()

		pickup, pickupSig := signedShipment(t, EventShipmentPickedUp, 1)
		require.NoError(t, env.service.HandleShipmentWebhook(ctx, pickup, pickupSig))

		delivered, deliveredSig := signedShipment(t, EventShipmentDelivered, 1)
		require.NoError(t, env.service.HandleShipmentWebhook(ctx, delivered, deliveredSig))

		order, err := env.orders.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusDelivered, order.Status)

		// Redelivered callback acknowledged without error
		assert.NoError(t, env.service.HandleShipmentWebhook(ctx, delivered, deliveredSig))
	})

	t.Run("DeliveryBeforeShipRejected", func(t *testing.T) {
		env := setup(t)
		ctx := context.Background()

		delivered, deliveredSig := signedShipment(t, EventShipmentDelivered, 1)
		err := env.service.HandleShipmentWebhook(ctx, delivered, deliveredSig)
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindConflict))
	})
}

func TestGetTransaction(t *testing.T) {
	env := newTestEnv(t, twoSellerProducts()...)
	ctx := context.Background()
	env.stageCheckout(t, "tx-1")

	payload, signature := signedWebhook(t, EventPaymentCaptured, "tx-1")
	require.NoError(t, env.service.HandleWebhook(ctx, payload, signature))

	t.Run("OwnerSeesOrders", func(t *testing.T) {
		tx, orders, err := env.service.GetTransaction(ctx, 42, model.RoleBuyer, "tx-1")
		require.NoError(t, err)
		assert.Equal(t, model.TransactionStatusPaid, tx.Status)
		assert.Len(t, orders, 2)
	})

	t.Run("StrangerForbidden", func(t *testing.T) {
		_, _, err := env.service.GetTransaction(ctx, 7, model.RoleBuyer, "tx-1")
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
	})

	t.Run("AdminAllowed", func(t *testing.T) {
		_, orders, err := env.service.GetTransaction(ctx, 7, model.RoleAdmin, "tx-1")
		require.NoError(t, err)
		assert.Len(t, orders, 2)
	})
}
