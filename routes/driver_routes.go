package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/joy095/carrental/controllers/driver_controller"
	middleware "github.com/joy095/carrental/middlewares"
	"github.com/joy095/carrental/middlewares/auth"
)

func RegisterDriverRoutes(router *gin.Engine, deps Deps) {
	driverController := driver_controller.NewDriverController(deps.Drivers)

	// Public
	router.GET("/drivers/:id/reviews", driverController.ListReviews)

	protected := router.Group("/drivers")
	protected.Use(auth.AuthMiddleware(deps.JWTSecret))
	{
		protected.POST("/:id/reviews",
			middleware.NewRateLimiter(deps.Redis, "5-10m", "driver-review"),
			driverController.AddReview)
	}

	admin := router.Group("/drivers")
	admin.Use(auth.AuthMiddleware(deps.JWTSecret), auth.RequireAdmin())
	{
		admin.GET("", driverController.List)
		admin.GET("/available", driverController.ListAvailable)
		admin.POST("", driverController.Create)
		admin.GET("/:id", driverController.Get)
		admin.PUT("/:id/status", driverController.UpdateStatus)
		admin.PUT("/assign/:driverId/:bookingId", driverController.Assign)
		admin.PUT("/complete-assignment/:driverId", driverController.CompleteAssignment)
	}
}
