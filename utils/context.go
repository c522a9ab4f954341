// carrental/utils/context.go
package utils

import (
	"github.com/gin-gonic/gin"
	"github.com/joy095/carrental/logger"
)

// PrincipalContextKey is where the auth middleware stores the caller.
const PrincipalContextKey = "principal"

// GetPrincipal returns the authenticated caller placed on the context by the
// auth middleware.
func GetPrincipal(c *gin.Context) (Principal, error) {
	value, exists := c.Get(PrincipalContextKey)
	if !exists {
		logger.ErrorLogger.Error("Principal not found in context.")
		return Principal{}, ErrUnauthorized
	}

	principal, ok := value.(Principal)
	if !ok {
		logger.ErrorLogger.Errorf("Principal in context has unexpected type %T", value)
		return Principal{}, ErrUnauthorized
	}
	return principal, nil
}
