package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joy095/carrental/metrics"
	"github.com/joy095/carrental/repository"
	"github.com/joy095/carrental/services/booking_lifecycle_service"
	"github.com/joy095/carrental/services/driver_assignment_service"
	"github.com/joy095/carrental/services/payment_reconciliation_service"
	"github.com/redis/go-redis/v9"
)

// Deps carries everything the route groups need. Redis may be nil, in
// which case rate limits are kept per process.
type Deps struct {
	Store           repository.Store
	Bookings        *booking_lifecycle_service.Service
	Drivers         *driver_assignment_service.Service
	Payments        *payment_reconciliation_service.Service
	Redis           *redis.Client
	JWTSecret       []byte
	FrontendBaseURL string
	LookupRate      string
}

func RegisterRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok from car rental service"})
	})
	router.GET("/metrics", metrics.Handler())

	RegisterBookingRoutes(router, deps)
	RegisterDriverRoutes(router, deps)
	RegisterPaymentRoutes(router, deps)
	RegisterIncidentRoutes(router, deps)
}
