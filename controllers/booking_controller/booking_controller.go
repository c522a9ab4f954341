package booking_controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joy095/carrental/logger"
	"github.com/joy095/carrental/models/booking_models"
	"github.com/joy095/carrental/services/booking_lifecycle_service"
	"github.com/joy095/carrental/utils"
)

// BookingController exposes the booking lifecycle over HTTP.
type BookingController struct {
	Bookings *booking_lifecycle_service.Service
}

func NewBookingController(bookings *booking_lifecycle_service.Service) *BookingController {
	return &BookingController{Bookings: bookings}
}

func (bc *BookingController) Create(c *gin.Context) {
	principal, err := utils.GetPrincipal(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	var req booking_models.CreateBookingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnLogger.Warnf("Invalid booking request from %s: %v", principal.ID, err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": utils.KindValidation, "message": "invalid request body"})
		return
	}

	booking, err := bc.Bookings.Create(c.Request.Context(), principal, req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "booking": booking})
}

func (bc *BookingController) ListMine(c *gin.Context) {
	principal, err := utils.GetPrincipal(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	bookings, err := bc.Bookings.ListForUser(c.Request.Context(), principal.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bookings": bookings})
}

func (bc *BookingController) Get(c *gin.Context) {
	principal, err := utils.GetPrincipal(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	booking, err := bc.Bookings.Get(c.Request.Context(), id, principal)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": booking})
}

func (bc *BookingController) Cancel(c *gin.Context) {
	principal, err := utils.GetPrincipal(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	booking, err := bc.Bookings.Cancel(c.Request.Context(), id, principal)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Booking cancelled successfully", "booking": booking})
}

// ListAll is the admin listing; ?status= narrows it.
func (bc *BookingController) ListAll(c *gin.Context) {
	status := booking_models.Status(c.Query("status"))
	bookings, err := bc.Bookings.ListAll(c.Request.Context(), status)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bookings": bookings})
}

type updateStatusRequest struct {
	Status booking_models.Status `json:"status" binding:"required"`
}

func (bc *BookingController) UpdateStatus(c *gin.Context) {
	principal, err := utils.GetPrincipal(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": utils.KindValidation, "message": "status is required"})
		return
	}

	booking, err := bc.Bookings.Transition(c.Request.Context(), id, req.Status, principal)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": booking})
}

func (bc *BookingController) SendConfirmation(c *gin.Context) {
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := bc.Bookings.SendConfirmation(c.Request.Context(), id); err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Confirmation email sent successfully"})
}
