package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joy095/carrental/logger"
	"github.com/joy095/carrental/utils"
	"github.com/joy095/carrental/utils/jwt_parse"
)

// AuthMiddleware resolves the bearer token into a utils.Principal once per
// request and stores it under utils.PrincipalContextKey.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := jwt_parse.ExtractBearer(c.GetHeader("Authorization"))
		if err != nil {
			logger.WarnLogger.Warnf("Rejected request to %s: %v", c.FullPath(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    utils.KindUnauthorized,
				"message": err.Error(),
			})
			return
		}

		principal, err := jwt_parse.ParsePrincipal(tokenString, secret)
		if err != nil {
			logger.WarnLogger.Warnf("Failed to parse JWT token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    utils.KindUnauthorized,
				"message": "Invalid token",
			})
			return
		}

		c.Set(utils.PrincipalContextKey, principal)
		c.Next()
	}
}

// RequireAdmin must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := utils.GetPrincipal(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    utils.KindUnauthorized,
				"message": "Not authenticated",
			})
			return
		}
		if !principal.IsAdmin() {
			logger.WarnLogger.Warnf("User %s denied admin route %s", principal.ID, c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"code":    utils.KindForbidden,
				"message": "Admin access required",
			})
			return
		}
		c.Next()
	}
}
