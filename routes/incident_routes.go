package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/joy095/carrental/controllers/incident_controller"
	"github.com/joy095/carrental/middlewares/auth"
)

func RegisterIncidentRoutes(router *gin.Engine, deps Deps) {
	incidentController := incident_controller.NewIncidentController(deps.Store)

	admin := router.Group("/incidents")
	admin.Use(auth.AuthMiddleware(deps.JWTSecret), auth.RequireAdmin())
	{
		admin.GET("", incidentController.List)
	}
}
