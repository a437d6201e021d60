package handler

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/middleware"
	"marketplace/internal/service/dashboard"
	"marketplace/pkg/apperr"
	"marketplace/pkg/utils"
)

// DashboardHandler projection endpoints
type DashboardHandler struct {
	dashboards dashboard.DashboardService
}

// NewDashboardHandler creates a dashboard handler
func NewDashboardHandler(dashboardService dashboard.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboards: dashboardService}
}

// SellerStats handles GET /api/v1/dashboard/seller
func (h *DashboardHandler) SellerStats(c *gin.Context) {
	sellerID, ok := middleware.GetUserID(c)
	if !ok {
		utils.AppErrorResponse(c, apperr.Unauthorized("authentication required"))
		return
	}

	stats, err := h.dashboards.SellerStats(c.Request.Context(), sellerID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, stats)
}

// AdminStats handles GET /api/v1/dashboard/admin
func (h *DashboardHandler) AdminStats(c *gin.Context) {
	stats, err := h.dashboards.AdminStats(c.Request.Context())
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, stats)
}
