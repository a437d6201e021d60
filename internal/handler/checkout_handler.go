package handler

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/middleware"
	"marketplace/internal/service/checkout"
	"marketplace/pkg/apperr"
	"marketplace/pkg/utils"
)

// CheckoutHandler checkout endpoints
type CheckoutHandler struct {
	checkout checkout.CheckoutService
}

// NewCheckoutHandler creates a checkout handler
func NewCheckoutHandler(checkoutService checkout.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkoutService}
}

// CartCheckout handles POST /api/v1/checkout/cart
func (h *CheckoutHandler) CartCheckout(c *gin.Context) {
	buyerID, ok := middleware.GetUserID(c)
	if !ok {
		utils.AppErrorResponse(c, apperr.Unauthorized("authentication required"))
		return
	}

	var req checkout.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.AppErrorResponse(c, apperr.Validation(err.Error()))
		return
	}

	resp, err := h.checkout.CartCheckout(c.Request.Context(), buyerID, c.ClientIP(), &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, resp)
}

// BuyNow handles POST /api/v1/checkout/buy-now
func (h *CheckoutHandler) BuyNow(c *gin.Context) {
	buyerID, ok := middleware.GetUserID(c)
	if !ok {
		utils.AppErrorResponse(c, apperr.Unauthorized("authentication required"))
		return
	}

	var req checkout.BuyNowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.AppErrorResponse(c, apperr.Validation(err.Error()))
		return
	}

	resp, err := h.checkout.BuyNow(c.Request.Context(), buyerID, c.ClientIP(), &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, resp)
}
