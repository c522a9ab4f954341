package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/joy095/carrental/controllers/booking_controller"
	middleware "github.com/joy095/carrental/middlewares"
	"github.com/joy095/carrental/middlewares/auth"
)

// RegisterBookingRoutes registers all booking-related routes
func RegisterBookingRoutes(router *gin.Engine, deps Deps) {
	bookingController := booking_controller.NewBookingController(deps.Bookings)

	protected := router.Group("/bookings")
	protected.Use(auth.AuthMiddleware(deps.JWTSecret))
	{
		protected.POST("",
			middleware.NewRateLimiter(deps.Redis, "10-1m", "create-booking"),
			bookingController.Create)
		protected.GET("/user", bookingController.ListMine)
		protected.GET("/:id", bookingController.Get)
		protected.PUT("/:id/cancel",
			middleware.NewRateLimiter(deps.Redis, "5-1m", "cancel-booking"),
			bookingController.Cancel)

		// Admin routes
		protected.GET("", auth.RequireAdmin(), bookingController.ListAll)
		protected.PUT("/:id/status", auth.RequireAdmin(), bookingController.UpdateStatus)
		protected.POST("/:id/send-confirmation", auth.RequireAdmin(), bookingController.SendConfirmation)
	}
}
