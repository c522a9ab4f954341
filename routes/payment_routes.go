package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/joy095/carrental/controllers/payment_controller"
	middleware "github.com/joy095/carrental/middlewares"
	"github.com/joy095/carrental/middlewares/auth"
)

func RegisterPaymentRoutes(router *gin.Engine, deps Deps) {
	paymentController := payment_controller.NewPaymentController(deps.Payments, deps.FrontendBaseURL)

	lookupRate := deps.LookupRate
	if lookupRate == "" {
		lookupRate = "20-1m"
	}

	// Called by the gateway and the user's browser; no bearer token.
	public := router.Group("/payment")
	{
		public.POST("/webhook/:gateway", paymentController.Webhook)
		public.GET("/payment-return", paymentController.PaymentReturn)
	}

	protected := router.Group("/payment")
	protected.Use(auth.AuthMiddleware(deps.JWTSecret))
	{
		protected.POST("/initiate",
			middleware.NewRateLimiter(deps.Redis, "10-1m", "payment-initiate"),
			paymentController.Initiate)
		protected.POST("/verify",
			middleware.NewRateLimiter(deps.Redis, "10-1m", "payment-verify"),
			paymentController.Verify)
		protected.POST("/lookup",
			middleware.NewRateLimiter(deps.Redis, lookupRate, "payment-lookup"),
			paymentController.Lookup)
	}
}
