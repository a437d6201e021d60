package handler

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/service/auth"
	"marketplace/pkg/apperr"
	"marketplace/pkg/utils"
)

// AuthHandler authentication endpoints
type AuthHandler struct {
	auth auth.AuthService
}

// NewAuthHandler creates an auth handler
func NewAuthHandler(authService auth.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.AppErrorResponse(c, apperr.Validation(err.Error()))
		return
	}

	user, err := h.auth.Register(c.Request.Context(), &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, user)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.AppErrorResponse(c, apperr.Validation(err.Error()))
		return
	}

	tokens, err := h.auth.Login(c.Request.Context(), &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, tokens)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.AppErrorResponse(c, apperr.Validation(err.Error()))
		return
	}

	tokens, err := h.auth.Refresh(c.Request.Context(), &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, tokens)
}
