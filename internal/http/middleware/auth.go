package middleware

import (
	"net/http"
	"strings"

	"busreserve/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey      = "userID"
	userRoleKey    = "userRole"
	clientIDHeader = "X-Client-Id"
)

func bearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// AuthOptional sets the caller identity when a valid token is present and
// otherwise lets the request through anonymously.
func AuthOptional(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := bearerToken(c); raw != "" {
			if claims, err := services.ParseToken(secret, raw); err == nil {
				c.Set(userIDKey, claims.UserID)
				c.Set(userRoleKey, claims.Role)
			}
		}
		c.Next()
	}
}

// AuthRequired rejects requests without a valid token.
func AuthRequired(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "authentication required",
				"request_id": GetRequestID(c),
			})
			return
		}
		claims, err := services.ParseToken(secret, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "invalid or expired token",
				"request_id": GetRequestID(c),
			})
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Set(userRoleKey, claims.Role)
		c.Next()
	}
}

// UserID returns the authenticated user id, or 0.
func UserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

// UserRole returns the authenticated role, or "".
func UserRole(c *gin.Context) string {
	return c.GetString(userRoleKey)
}

// ClientID returns the client-supplied stable token header, if any.
func ClientID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(clientIDHeader))
}
