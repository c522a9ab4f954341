package logger_middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joy095/carrental/logger"
	"github.com/sirupsen/logrus"
)

// GinLogger logs one structured line per request through the shared loggers.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			"method":    c.Request.Method,
			"path":      path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.ErrorLogger.WithFields(fields).Error("request failed")
		case c.Writer.Status() >= 400:
			logger.WarnLogger.WithFields(fields).Warn("request rejected")
		default:
			logger.InfoLogger.WithFields(fields).Info("request served")
		}
	}
}
