package middleware

import (
	"net/http"
	"strings"

	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/security"
	"github.com/gin-gonic/gin"
)

const (
	userIDKey = "userId"
	emailKey  = "userEmail"
)

// bearerToken reads the Authorization header, falling back to the token
// query parameter for clients that cannot set headers (websocket, SSE).
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return c.Query("token")
}

// AuthMiddleware requires a valid user token and stores its subject.
func AuthMiddleware(jwtSecret string, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSecret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Authentication is not configured"})
			return
		}

		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		claims, err := security.ValidateJWT(token, jwtSecret)
		if err != nil {
			logger.Auth().Warn("Rejected token", "path", c.Request.URL.Path, "error", err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		userID, err := security.UserIDFromClaims(claims)
		if err != nil || security.IsSysop(claims) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Set(emailKey, security.EmailFromClaims(claims))
		c.Next()
	}
}

// SysopMiddleware requires a token issued by the sysop login.
func SysopMiddleware(jwtSecret string, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSecret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Authentication is not configured"})
			return
		}

		claims, err := security.ValidateJWT(bearerToken(c), jwtSecret)
		if err != nil || !security.IsSysop(claims) {
			logger.Auth().Warn("Unauthorized sysop access attempt", "path", c.Request.URL.Path, "ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user id.
func GetUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(userIDKey)
	return userID, userID != ""
}

// GetEmail returns the email claim of the authenticated user, if any.
func GetEmail(c *gin.Context) string {
	return c.GetString(emailKey)
}
