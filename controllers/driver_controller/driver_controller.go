package driver_controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joy095/carrental/badwords"
	"github.com/joy095/carrental/models/driver_models"
	"github.com/joy095/carrental/services/driver_assignment_service"
	"github.com/joy095/carrental/utils"
)

type DriverController struct {
	Drivers *driver_assignment_service.Service
}

func NewDriverController(drivers *driver_assignment_service.Service) *DriverController {
	return &DriverController{Drivers: drivers}
}

func (dc *DriverController) List(c *gin.Context) {
	drivers, err := dc.Drivers.ListDrivers(c.Request.Context(), driver_models.Status(c.Query("status")))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "drivers": drivers})
}

func (dc *DriverController) ListAvailable(c *gin.Context) {
	drivers, err := dc.Drivers.ListDrivers(c.Request.Context(), driver_models.StatusAvailable)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "drivers": drivers})
}

func (dc *DriverController) Create(c *gin.Context) {
	var req driver_models.CreateDriverInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": utils.KindValidation, "message": "invalid request body"})
		return
	}

	driver, err := dc.Drivers.CreateDriver(c.Request.Context(), req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "driver": driver})
}

func (dc *DriverController) Get(c *gin.Context) {
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	driver, err := dc.Drivers.GetDriver(c.Request.Context(), id)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "driver": driver})
}

func (dc *DriverController) Assign(c *gin.Context) {
	driverID, ok := utils.ParseUUIDParam(c, "driverId")
	if !ok {
		return
	}
	bookingID, ok := utils.ParseUUIDParam(c, "bookingId")
	if !ok {
		return
	}

	booking, driver, err := dc.Drivers.Assign(c.Request.Context(), driverID, bookingID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Driver assigned successfully",
		"driver":  driver,
		"booking": booking,
	})
}

func (dc *DriverController) CompleteAssignment(c *gin.Context) {
	driverID, ok := utils.ParseUUIDParam(c, "driverId")
	if !ok {
		return
	}

	driver, err := dc.Drivers.Complete(c.Request.Context(), driverID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Assignment completed successfully", "driver": driver})
}

type statusRequest struct {
	Status driver_models.Status `json:"status" binding:"required"`
}

func (dc *DriverController) UpdateStatus(c *gin.Context) {
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": utils.KindValidation, "message": "status is required"})
		return
	}

	driver, err := dc.Drivers.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "driver": driver})
}

type reviewRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

func (dc *DriverController) AddReview(c *gin.Context) {
	principal, err := utils.GetPrincipal(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": utils.KindValidation, "message": "rating is required"})
		return
	}
	if badwords.ContainsBadWords(req.Comment) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": utils.KindValidation, "message": "Review comment contains inappropriate words"})
		return
	}

	driver, err := dc.Drivers.AddReview(c.Request.Context(), id, principal.ID, req.Rating, req.Comment)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Review added successfully", "rating": driver.Rating})
}

func (dc *DriverController) ListReviews(c *gin.Context) {
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	driver, err := dc.Drivers.GetDriver(c.Request.Context(), id)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reviews": driver.Reviews, "rating": driver.Rating})
}
