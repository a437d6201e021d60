package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"marketplace/internal/utils"
	"marketplace/pkg/apperr"
	putils "marketplace/pkg/utils"
)

const (
	// AuthorizationHeader header carrying the bearer token
	AuthorizationHeader = "Authorization"
	// BearerPrefix token scheme prefix
	BearerPrefix = "Bearer "
	// UserIDKey context key for the authenticated user id
	UserIDKey = "user_id"
	// UserRoleKey context key for the authenticated user role
	UserRoleKey = "user_role"
)

// TokenValidator validates an access token and returns its claims
type TokenValidator func(token string) (*utils.JWTClaims, error)

// Auth authentication middleware
func Auth(validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			putils.AppErrorResponse(c, apperr.Unauthorized("missing authorization header"))
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			putils.AppErrorResponse(c, apperr.Unauthorized("invalid authorization header format"))
			c.Abort()
			return
		}

		token := strings.TrimPrefix(authHeader, BearerPrefix)
		claims, err := validate(token)
		if err != nil {
			putils.AppErrorResponse(c, apperr.Unauthorized("invalid token"))
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UserRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole allows only the listed roles past. Must run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(c *gin.Context) {
		role, ok := GetUserRole(c)
		if !ok || !allowed[role] {
			putils.AppErrorResponse(c, apperr.Forbidden("insufficient permissions"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID reads the authenticated user id from the request context
func GetUserID(c *gin.Context) (uint64, bool) {
	v, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

// GetUserRole reads the authenticated user role from the request context
func GetUserRole(c *gin.Context) (string, bool) {
	v, exists := c.Get(UserRoleKey)
	if !exists {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}
