package incident_controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joy095/carrental/repository"
	"github.com/joy095/carrental/utils"
)

// IncidentController serves the operator review queue.
type IncidentController struct {
	Store repository.Store
}

func NewIncidentController(store repository.Store) *IncidentController {
	return &IncidentController{Store: store}
}

func (ic *IncidentController) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": utils.KindValidation, "message": "limit must be a positive integer"})
		return
	}

	incidents, err := ic.Store.ListIncidents(c.Request.Context(), limit)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "incidents": incidents})
}
