package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"marketplace/internal/model"
	"marketplace/pkg/apperr"
)

// DayStats revenue and order count over one day
type DayStats struct {
	Revenue int64 `json:"revenue"` // cents
	Orders  int64 `json:"orders"`
}

// MonthRevenue revenue of one calendar month
type MonthRevenue struct {
	Month   int   `json:"month"` // 1..12
	Revenue int64 `json:"revenue"`
}

// SellerRevenue one seller's total revenue
type SellerRevenue struct {
	SellerID uint64 `json:"seller_id"`
	Revenue  int64  `json:"revenue"`
	Orders   int64  `json:"orders"`
}

// ProductRevenue one product's total revenue
type ProductRevenue struct {
	ProductID uint64 `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Revenue   int64  `json:"revenue"`
}

// RoleCount user count per role
type RoleCount struct {
	Role  string `json:"role"`
	Count int64  `json:"count"`
}

// StatsRepository read-side aggregations over orders/products/users. Pure
// computed views; no state transitions happen here.
type StatsRepository interface {
	// Revenue and order count for paid orders created inside [from, to)
	PaidOrderStats(ctx context.Context, sellerID uint64, from, to time.Time) (*DayStats, error)

	// Count of a seller's orders currently in active fulfillment states
	ActiveOrderCount(ctx context.Context, sellerID uint64) (int64, error)

	// Paid revenue per calendar month of a year, ascending by month number
	MonthlyRevenue(ctx context.Context, year int) ([]MonthRevenue, error)

	// Top sellers by paid revenue, descending
	TopSellers(ctx context.Context, limit int) ([]SellerRevenue, error)

	// Top products by paid revenue, descending
	TopProducts(ctx context.Context, limit int) ([]ProductRevenue, error)

	// User counts grouped by role
	UsersByRole(ctx context.Context) ([]RoleCount, error)
}

// statsRepository implementation
type statsRepository struct {
	db *gorm.DB
}

// NewStatsRepository creates a stats repository
func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepository{db: db}
}

// PaidOrderStats aggregates paid orders in a window. sellerID 0 means all sellers.
func (r *statsRepository) PaidOrderStats(ctx context.Context, sellerID uint64, from, to time.Time) (*DayStats, error) {
	var stats DayStats

	db := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("payment_status = ?", model.PaymentStatusPaid).
		Where("created_at >= ? AND created_at < ?", from, to)
	if sellerID != 0 {
		db = db.Where("seller_id = ?", sellerID)
	}

	err := db.Select("COALESCE(SUM(total_price), 0) AS revenue, COUNT(*) AS orders").
		Scan(&stats).Error
	if err != nil {
		return nil, apperr.Database(err)
	}
	return &stats, nil
}

// ActiveOrderCount counts orders in non-terminal fulfillment states
func (r *statsRepository) ActiveOrderCount(ctx context.Context, sellerID uint64) (int64, error) {
	var count int64

	db := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("status IN ?", []string{
			model.OrderStatusPending,
			model.OrderStatusProcessing,
			model.OrderStatusShipped,
		})
	if sellerID != 0 {
		db = db.Where("seller_id = ?", sellerID)
	}

	if err := db.Count(&count).Error; err != nil {
		return 0, apperr.Database(err)
	}
	return count, nil
}

// MonthlyRevenue groups paid revenue by month number, ascending
func (r *statsRepository) MonthlyRevenue(ctx context.Context, year int) ([]MonthRevenue, error) {
	var rows []MonthRevenue

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("MONTH(created_at) AS month, COALESCE(SUM(total_price), 0) AS revenue").
		Where("payment_status = ?", model.PaymentStatusPaid).
		Where("YEAR(created_at) = ?", year).
		Group("MONTH(created_at)").
		Order("month ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Database(err)
	}
	return rows, nil
}

// TopSellers groups paid revenue by seller, descending
func (r *statsRepository) TopSellers(ctx context.Context, limit int) ([]SellerRevenue, error) {
	var rows []SellerRevenue

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("seller_id, COALESCE(SUM(total_price), 0) AS revenue, COUNT(*) AS orders").
		Where("payment_status = ?", model.PaymentStatusPaid).
		Group("seller_id").
		Order("revenue DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Database(err)
	}
	return rows, nil
}

// TopProducts joins order items with their paid parent orders, descending revenue
func (r *statsRepository) TopProducts(ctx context.Context, limit int) ([]ProductRevenue, error) {
	var rows []ProductRevenue

	err := r.db.WithContext(ctx).
		Model(&model.OrderItem{}).
		Select("order_items.product_id, COALESCE(SUM(order_items.quantity), 0) AS quantity, COALESCE(SUM(order_items.line_total), 0) AS revenue").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.payment_status = ?", model.PaymentStatusPaid).
		Group("order_items.product_id").
		Order("revenue DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Database(err)
	}
	return rows, nil
}

// UsersByRole groups users by role
func (r *statsRepository) UsersByRole(ctx context.Context) ([]RoleCount, error) {
	var rows []RoleCount

	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Database(err)
	}
	return rows, nil
}
