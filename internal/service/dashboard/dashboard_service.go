package dashboard

import (
	"context"
	"math"
	"time"

	"marketplace/internal/repository"
)

// SellerDashboard seller-facing daily projection
type SellerDashboard struct {
	TodayRevenue         int64                       `json:"today_revenue"` // cents
	TodayOrders          int64                       `json:"today_orders"`
	RevenueChangePercent float64                     `json:"revenue_change_percent"`
	OrdersChangePercent  float64                     `json:"orders_change_percent"`
	ActiveOrders         int64                       `json:"active_orders"`
	TopProducts          []repository.ProductRevenue `json:"top_products"`
}

// AdminDashboard marketplace-wide projection
type AdminDashboard struct {
	TodayRevenue         int64                       `json:"today_revenue"` // cents
	TodayOrders          int64                       `json:"today_orders"`
	RevenueChangePercent float64                     `json:"revenue_change_percent"`
	OrdersChangePercent  float64                     `json:"orders_change_percent"`
	ActiveOrders         int64                       `json:"active_orders"`
	MonthlyRevenue       []repository.MonthRevenue   `json:"monthly_revenue"`
	TopSellers           []repository.SellerRevenue  `json:"top_sellers"`
	TopProducts          []repository.ProductRevenue `json:"top_products"`
	UsersByRole          []repository.RoleCount      `json:"users_by_role"`
}

// DashboardService computed read-side projections. Recomputed per request
// from the order book; never stored, never part of any transition.
type DashboardService interface {
	SellerStats(ctx context.Context, sellerID uint64) (*SellerDashboard, error)
	AdminStats(ctx context.Context) (*AdminDashboard, error)
}

type dashboardService struct {
	stats repository.StatsRepository
	now   func() time.Time
}

// NewDashboardService creates a dashboard service
func NewDashboardService(stats repository.StatsRepository) DashboardService {
	return &dashboardService{stats: stats, now: time.Now}
}

const topLimit = 5

// SellerStats builds the seller dashboard
func (s *dashboardService) SellerStats(ctx context.Context, sellerID uint64) (*SellerDashboard, error) {
	today, yesterday, err := s.dayOverDay(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	active, err := s.stats.ActiveOrderCount(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	topProducts, err := s.stats.TopProducts(ctx, topLimit)
	if err != nil {
		return nil, err
	}

	return &SellerDashboard{
		TodayRevenue:         today.Revenue,
		TodayOrders:          today.Orders,
		RevenueChangePercent: PercentChange(yesterday.Revenue, today.Revenue),
		OrdersChangePercent:  PercentChange(yesterday.Orders, today.Orders),
		ActiveOrders:         active,
		TopProducts:          topProducts,
	}, nil
}

// AdminStats builds the marketplace-wide dashboard
func (s *dashboardService) AdminStats(ctx context.Context) (*AdminDashboard, error) {
	today, yesterday, err := s.dayOverDay(ctx, 0)
	if err != nil {
		return nil, err
	}

	active, err := s.stats.ActiveOrderCount(ctx, 0)
	if err != nil {
		return nil, err
	}

	monthly, err := s.stats.MonthlyRevenue(ctx, s.now().Year())
	if err != nil {
		return nil, err
	}

	topSellers, err := s.stats.TopSellers(ctx, topLimit)
	if err != nil {
		return nil, err
	}

	topProducts, err := s.stats.TopProducts(ctx, topLimit)
	if err != nil {
		return nil, err
	}

	usersByRole, err := s.stats.UsersByRole(ctx)
	if err != nil {
		return nil, err
	}

	return &AdminDashboard{
		TodayRevenue:         today.Revenue,
		TodayOrders:          today.Orders,
		RevenueChangePercent: PercentChange(yesterday.Revenue, today.Revenue),
		OrdersChangePercent:  PercentChange(yesterday.Orders, today.Orders),
		ActiveOrders:         active,
		MonthlyRevenue:       monthly,
		TopSellers:           topSellers,
		TopProducts:          topProducts,
		UsersByRole:          usersByRole,
	}, nil
}

// dayOverDay fetches today's and yesterday's paid order aggregates
func (s *dashboardService) dayOverDay(ctx context.Context, sellerID uint64) (today, yesterday *repository.DayStats, err error) {
	now := s.now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	startOfYesterday := startOfToday.AddDate(0, 0, -1)

	today, err = s.stats.PaidOrderStats(ctx, sellerID, startOfToday, startOfToday.AddDate(0, 0, 1))
	if err != nil {
		return nil, nil, err
	}
	yesterday, err = s.stats.PaidOrderStats(ctx, sellerID, startOfYesterday, startOfToday)
	if err != nil {
		return nil, nil, err
	}
	return today, yesterday, nil
}

// PercentChange day-over-day change rounded to two decimals. A zero baseline
// reads as no change when today is also zero and as a 100% rise otherwise.
func PercentChange(previous, current int64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	change := float64(current-previous) / float64(previous) * 100
	return math.Round(change*100) / 100
}
