package order

import (
	"context"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/pkg/apperr"
)

// OrderService read side of the order book
type OrderService interface {
	// GetOrder returns one order; visible to its buyer, its seller and admins
	GetOrder(ctx context.Context, requesterID uint64, role string, orderID uint64) (*model.Order, error)

	// ListBuyerOrders lists a buyer's orders, newest first
	ListBuyerOrders(ctx context.Context, buyerID uint64, page, pageSize int) ([]*model.Order, int64, error)

	// ListSellerOrders lists a seller's orders, newest first
	ListSellerOrders(ctx context.Context, sellerID uint64, page, pageSize int) ([]*model.Order, int64, error)
}

type orderService struct {
	orders repository.OrderRepository
}

// NewOrderService creates an order query service
func NewOrderService(orders repository.OrderRepository) OrderService {
	return &orderService{orders: orders}
}

// GetOrder returns one order after an ownership check
func (s *orderService) GetOrder(ctx context.Context, requesterID uint64, role string, orderID uint64) (*model.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.BuyerID != requesterID && order.SellerID != requesterID && role != model.RoleAdmin {
		// Hide existence from unrelated accounts
		return nil, apperr.NotFound("order not found").WithDetail("order_id", orderID)
	}
	return order, nil
}

// ListBuyerOrders lists a buyer's orders
func (s *orderService) ListBuyerOrders(ctx context.Context, buyerID uint64, page, pageSize int) ([]*model.Order, int64, error) {
	return s.orders.ListByBuyer(ctx, buyerID, page, pageSize)
}

// ListSellerOrders lists a seller's orders
func (s *orderService) ListSellerOrders(ctx context.Context, sellerID uint64, page, pageSize int) ([]*model.Order, int64, error) {
	return s.orders.ListBySeller(ctx, sellerID, page, pageSize)
}
