package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"marketplace/internal/middleware"
	"marketplace/internal/service/payment"
	"marketplace/pkg/apperr"
	"marketplace/pkg/utils"
)

// SignatureHeader webhook HMAC header
const SignatureHeader = "X-Webhook-Signature"

// PaymentHandler webhook and payment endpoints
type PaymentHandler struct {
	payments payment.PaymentService
}

// NewPaymentHandler creates a payment handler
func NewPaymentHandler(paymentService payment.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: paymentService}
}

// PaymentWebhook handles POST /webhooks/payment. The 200 acknowledgment is
// sent only after the state transition is durable; any error leaves a non-2xx
// so the gateway redelivers.
func (h *PaymentHandler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.AppErrorResponse(c, apperr.Validation("unreadable request body"))
		return
	}

	signature := c.GetHeader(SignatureHeader)
	if err := h.payments.HandleWebhook(c.Request.Context(), body, signature); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"acknowledged": true})
}

// ShipmentWebhook handles POST /webhooks/shipment
func (h *PaymentHandler) ShipmentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.AppErrorResponse(c, apperr.Validation("unreadable request body"))
		return
	}

	signature := c.GetHeader(SignatureHeader)
	if err := h.payments.HandleShipmentWebhook(c.Request.Context(), body, signature); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"acknowledged": true})
}

// CancelPayment handles POST /api/v1/payments/:id/cancel
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.AppErrorResponse(c, apperr.Unauthorized("authentication required"))
		return
	}
	role, _ := middleware.GetUserRole(c)

	transactionID := c.Param("id")
	if err := h.payments.CancelPayment(c.Request.Context(), userID, role, transactionID); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"cancelled": true})
}

// GetTransaction handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.AppErrorResponse(c, apperr.Unauthorized("authentication required"))
		return
	}
	role, _ := middleware.GetUserRole(c)

	tx, orders, err := h.payments.GetTransaction(c.Request.Context(), userID, role, c.Param("id"))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"transaction": tx,
		"orders":      orders,
	})
}
