package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joy095/carrental/logger"
)

// RespondError writes the error envelope used by every controller.
func RespondError(c *gin.Context, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.ErrorLogger.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"success": false, "code": ErrorKind(err), "message": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"success": false, "code": ErrorKind(err), "message": err.Error()})
}

// ParseUUIDParam reads a path parameter as a UUID.
func ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": KindValidation, "message": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
