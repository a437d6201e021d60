package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"marketplace/internal/middleware"
	"marketplace/internal/service/order"
	"marketplace/pkg/apperr"
	"marketplace/pkg/utils"
)

// OrderHandler order query endpoints
type OrderHandler struct {
	orders order.OrderService
}

// NewOrderHandler creates an order handler
func NewOrderHandler(orderService order.OrderService) *OrderHandler {
	return &OrderHandler{orders: orderService}
}

// GetOrder handles GET /api/v1/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.AppErrorResponse(c, apperr.Unauthorized("authentication required"))
		return
	}
	role, _ := middleware.GetUserRole(c)

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.AppErrorResponse(c, apperr.Validation("invalid order id"))
		return
	}

	result, err := h.orders.GetOrder(c.Request.Context(), userID, role, orderID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, result)
}

// ListMyOrders handles GET /api/v1/orders
func (h *OrderHandler) ListMyOrders(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.AppErrorResponse(c, apperr.Unauthorized("authentication required"))
		return
	}

	page, pageSize := pagination(c)
	orders, total, err := h.orders.ListBuyerOrders(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessPageResponse(c, orders, total, page, pageSize)
}

// ListSellerOrders handles GET /api/v1/seller/orders
func (h *OrderHandler) ListSellerOrders(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.AppErrorResponse(c, apperr.Unauthorized("authentication required"))
		return
	}

	page, pageSize := pagination(c)
	orders, total, err := h.orders.ListSellerOrders(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessPageResponse(c, orders, total, page, pageSize)
}

// pagination parses page/page_size query parameters with sane bounds
func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
