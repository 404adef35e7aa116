package authentication

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContextClaimsKey is the key under which verified Claims are stored in the Gin context.
const ContextClaimsKey = "claims"

// AuthMiddleware rejects requests without a valid access token: 401 when the
// header is missing, 403 when the token is malformed, forged or expired.
func AuthMiddleware(service AuthenticationService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := service.Authenticate(c.GetHeader("Authorization"))
		switch {
		case err == nil:
			c.Set(ContextClaimsKey, claims)
			c.Next()
		case errors.Is(err, ErrMissingToken):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
		default:
			logger.Warn("access token rejected",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid or expired access token"})
		}
	}
}

// ClaimsFromContext returns the claims set by AuthMiddleware.
func ClaimsFromContext(c *gin.Context) (*Claims, bool) {
	raw, exists := c.Get(ContextClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := raw.(*Claims)
	return claims, ok
}
